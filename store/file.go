package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/inconshreveable/log15/v3"

	"PokerPilot/poker"
	"PokerPilot/utils"
)

// FileSessionStore keeps every session in one JSON document, rewritten
// atomically on each save. Suitable for a single-process bot.
type FileSessionStore struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*poker.Session
	log      log.Logger
}

type stateDocument struct {
	Sessions map[string]*poker.Session `json:"sessions"`
}

func NewFileSessionStore(path string) (*FileSessionStore, error) {
	s := &FileSessionStore{
		path:     path,
		sessions: map[string]*poker.Session{},
		log:      log.New("module", "store"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSessionStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	if doc.Sessions != nil {
		s.sessions = doc.Sessions
	}
	s.log.Info("state loaded", "path", s.path, "sessions", len(s.sessions))
	return nil
}

func (s *FileSessionStore) Get(_ context.Context, chatID int64, topicID int) (*poker.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[Key(chatID, topicID)]; ok {
		return cloneSession(sess), nil
	}
	return poker.NewSession(chatID, topicID), nil
}

func (s *FileSessionStore) Save(_ context.Context, sess *poker.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[Key(sess.ChatID, sess.TopicID)] = cloneSession(sess)
	return s.flush()
}

func (s *FileSessionStore) Delete(_ context.Context, chatID int64, topicID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, Key(chatID, topicID))
	return s.flush()
}

func (s *FileSessionStore) All(_ context.Context) ([]*poker.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.sessions))
	for k := range s.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*poker.Session, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneSession(s.sessions[k]))
	}
	return out, nil
}

// flush writes the whole document through a temp file and rename so a crash
// mid-write never truncates the state.
func (s *FileSessionStore) flush() error {
	data, err := json.MarshalIndent(stateDocument{Sessions: s.sessions}, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.path, data)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// cloneSession gives callers their own copy so concurrent readers never see a
// session mid-mutation.
func cloneSession(s *poker.Session) *poker.Session {
	data, err := json.Marshal(s)
	if err != nil {
		c := *s
		return &c
	}
	var out poker.Session
	if err := json.Unmarshal(data, &out); err != nil {
		c := *s
		return &c
	}
	if out.Participants == nil {
		out.Participants = map[int64]poker.Participant{}
	}
	return &out
}

// FileRoleStore persists user roles as a flat JSON object.
type FileRoleStore struct {
	mu    sync.Mutex
	path  string
	roles map[string]poker.Role
}

func NewFileRoleStore(path string) (*FileRoleStore, error) {
	s := &FileRoleStore{path: path, roles: map[string]poker.Role{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	if err := json.Unmarshal(data, &s.roles); err != nil {
		return nil, fmt.Errorf("parse roles file %s: %w", path, err)
	}
	return s, nil
}

func (s *FileRoleStore) Get(_ context.Context, userID int64) (poker.Role, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[fmt.Sprint(userID)]
	return role, ok, nil
}

func (s *FileRoleStore) Set(_ context.Context, userID int64, role poker.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[fmt.Sprint(userID)] = role
	data, err := json.MarshalIndent(s.roles, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.path, data)
}

// FileTokenStore persists per-group Jira tokens, encrypted when the crypto
// key is configured.
type FileTokenStore struct {
	mu     sync.Mutex
	path   string
	tokens map[string]string
}

func NewFileTokenStore(path string) (*FileTokenStore, error) {
	s := &FileTokenStore{path: path, tokens: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tokens file: %w", err)
	}
	if err := json.Unmarshal(data, &s.tokens); err != nil {
		return nil, fmt.Errorf("parse tokens file %s: %w", path, err)
	}
	return s, nil
}

func (s *FileTokenStore) Get(_ context.Context, chatID int64, topicID int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tokens[Key(chatID, topicID)]
	if !ok {
		return "", nil
	}
	return utils.Decrypt(stored)
}

func (s *FileTokenStore) Set(_ context.Context, chatID int64, topicID int, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := utils.Encrypt(token)
	if err != nil {
		return err
	}
	s.tokens[Key(chatID, topicID)] = enc
	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(s.path, data)
}
