package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"PokerPilot/jira"
	"PokerPilot/poker"
)

// SetupRouter exposes the operational HTTP surface: liveness, readiness and
// a read-only session snapshot for debugging.
func SetupRouter(manager *poker.Manager, jiraClient *jira.Client) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{"store": "ok", "jira": "not configured"}
		code := http.StatusOK

		if _, err := manager.ActiveSessions(ctx); err != nil {
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if jiraClient != nil && jiraClient.Configured() {
			if err := jiraClient.Myself(ctx); err != nil {
				status["jira"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status["jira"] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	r.Get("/api/v1/sessions/{chat}/{topic}", func(w http.ResponseWriter, req *http.Request) {
		chatID, err := strconv.ParseInt(chi.URLParam(req, "chat"), 10, 64)
		if err != nil {
			http.Error(w, "invalid chat id", http.StatusBadRequest)
			return
		}
		topicID, err := strconv.Atoi(chi.URLParam(req, "topic"))
		if err != nil {
			http.Error(w, "invalid topic id", http.StatusBadRequest)
			return
		}

		s, err := manager.Session(req.Context(), chatID, topicID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s)
	})

	return r
}
