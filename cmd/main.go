package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/inconshreveable/log15/v3"

	"PokerPilot/bot"
	"PokerPilot/config"
	"PokerPilot/db"
	"PokerPilot/jira"
	"PokerPilot/poker"
	"PokerPilot/scheduler"
	"PokerPilot/store"
	"PokerPilot/utils"
)

func main() {
	config.LoadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Crit("configuration error", "err", err)
		os.Exit(1)
	}

	if lvl, err := log.LvlFromString(cfg.LogLevel); err == nil {
		log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StdoutHandler))
	}

	if err := utils.InitCrypto(cfg.EncryptionKey); err != nil {
		log.Crit("crypto init failed", "err", err)
		os.Exit(1)
	}

	sessions, roles, tokens, err := buildStores(cfg)
	if err != nil {
		log.Crit("store init failed", "backend", cfg.StoreBackend, "err", err)
		os.Exit(1)
	}
	log.Info("session store ready", "backend", cfg.StoreBackend, "groups", len(cfg.Groups))

	var jiraClient *jira.Client
	var resolver poker.IssueResolver
	if cfg.JiraBaseURL != "" && cfg.JiraEmail != "" && cfg.JiraAPIToken != "" {
		jiraClient = jira.NewClient(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken, cfg.StoryPointsField)
		resolver = jiraClient
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := jiraClient.Myself(ctx); err != nil {
			log.Warn("jira connectivity check failed, continuing anyway", "err", err)
		} else {
			log.Info("jira reachable", "url", cfg.JiraBaseURL)
		}
		cancel()
	} else {
		log.Warn("jira not configured, story points sync disabled")
	}

	manager := poker.NewManager(sessions, roles, resolver, cfg)

	gateway, err := bot.New(cfg, manager, jiraClient, tokens)
	if err != nil {
		log.Crit("telegram init failed", "err", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(gateway, manager)
	if err != nil {
		log.Crit("scheduler init failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: SetupRouter(manager, jiraClient),
	}
	go func() {
		log.Info("http server running", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Crit("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("bot started")
	if err := gateway.Run(ctx); err != nil && err != context.Canceled {
		log.Error("bot stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	log.Info("bye")
}

// buildStores picks the persistence backend: a JSON file by default, Redis
// or Postgres when configured. Roles and group tokens follow the sessions
// into Postgres; the Redis backend keeps them in files since they are tiny
// and rarely written.
func buildStores(cfg *config.Config) (poker.SessionStore, poker.RoleStore, store.TokenStore, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		gdb, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return store.NewGormSessionStore(gdb), store.NewGormRoleStore(gdb), store.NewGormTokenStore(gdb), nil

	case config.BackendRedis:
		sessions, err := store.NewRedisSessionStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		roles, tokens, err := fileSideStores(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return sessions, roles, tokens, nil

	default:
		sessions, err := store.NewFileSessionStore(cfg.StateFile)
		if err != nil {
			return nil, nil, nil, err
		}
		roles, tokens, err := fileSideStores(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		return sessions, roles, tokens, nil
	}
}

func fileSideStores(cfg *config.Config) (poker.RoleStore, store.TokenStore, error) {
	roles, err := store.NewFileRoleStore(cfg.RolesFile)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := store.NewFileTokenStore(cfg.TokensFile)
	if err != nil {
		return nil, nil, err
	}
	return roles, tokens, nil
}
