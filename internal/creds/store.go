// Package creds owns the token pair. Everyone else reads snapshots.
package creds

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/domain"
)

// expiryMargin is subtracted from the server-reported lifetime so a token
// is never presented within a minute of dying on the wire.
const expiryMargin = time.Minute

// persisted is what survives a restart. The access token never does; it is
// short-lived and storage may be stale, so startup always refreshes.
type persisted struct {
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username"`
	RememberMe   bool   `json:"rememberMe"`
}

type Store struct {
	mu sync.Mutex

	access     string
	refresh    string
	username   string
	rememberMe bool
	expiry     time.Time
	accessSet  bool

	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Load reloads a persisted refresh token. A missing file is an empty
// store; a corrupt or undecryptable file is deleted, not surfaced.
func (s *Store) Load() {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	plain, err := unseal(blob)
	if err != nil {
		log.Warn().Err(err).Str("module", "creds").Msg("credential file unreadable, removing")
		_ = os.Remove(s.path)
		return
	}
	var p persisted
	if err := json.Unmarshal(plain, &p); err != nil {
		log.Warn().Err(err).Str("module", "creds").Msg("credential file malformed, removing")
		_ = os.Remove(s.path)
		return
	}
	s.mu.Lock()
	s.refresh = p.RefreshToken
	s.username = p.Username
	s.rememberMe = p.RememberMe
	s.mu.Unlock()
	log.Info().Str("module", "creds").Str("username", p.Username).Msg("restored persisted session")
}

// Store sets the whole credential set after a login/register exchange.
func (s *Store) Store(access, refresh string, expiresIn time.Duration, username string, rememberMe bool) {
	s.mu.Lock()
	s.access = access
	s.accessSet = true
	s.expiry = s.now().Add(expiresIn - expiryMargin)
	if refresh != "" {
		s.refresh = refresh
	}
	s.username = username
	s.rememberMe = rememberMe
	s.mu.Unlock()
	if rememberMe {
		s.persist()
	}
}

// UpdateAccess replaces only the access token after a refresh exchange.
func (s *Store) UpdateAccess(access string, expiresIn time.Duration) {
	s.mu.Lock()
	s.access = access
	s.accessSet = true
	s.expiry = s.now().Add(expiresIn - expiryMargin)
	remember := s.rememberMe
	s.mu.Unlock()
	if remember {
		s.persist()
	}
}

// Clear wipes everything, memory and disk. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.username = ""
	s.rememberMe = false
	s.expiry = time.Time{}
	s.accessSet = false
	s.mu.Unlock()
	_ = os.Remove(s.path)
}

// AccessToken returns the token only while it is trustworthy.
func (s *Store) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access == "" || !s.now().Before(s.expiry) {
		return "", false
	}
	return s.access, true
}

func (s *Store) RefreshToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh, s.refresh != ""
}

// NeedsRefresh reports an expired access token that a refresh token can
// still rescue.
func (s *Store) NeedsRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := s.accessSet && !s.now().Before(s.expiry)
	return expired && s.refresh != ""
}

// IsLoggedIn: a live access token, or a refresh token alone, both count as
// a recoverable session.
func (s *Store) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access != "" && s.now().Before(s.expiry) {
		return true
	}
	return s.refresh != ""
}

func (s *Store) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Snapshot returns a copy for display; no live references escape.
func (s *Store) Snapshot() domain.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Credentials{
		AccessToken:  s.access,
		RefreshToken: s.refresh,
		Username:     s.username,
		RememberMe:   s.rememberMe,
		Expiry:       s.expiry,
	}
}

func (s *Store) persist() {
	s.mu.Lock()
	p := persisted{RefreshToken: s.refresh, Username: s.username, RememberMe: s.rememberMe}
	s.mu.Unlock()

	plain, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Str("module", "creds").Msg("marshal credentials")
		return
	}
	blob, err := seal(plain)
	if err != nil {
		log.Error().Err(err).Str("module", "creds").Msg("seal credentials")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		log.Error().Err(err).Str("module", "creds").Msg("create credential dir")
		return
	}
	if err := os.WriteFile(s.path, blob, 0o600); err != nil {
		log.Error().Err(err).Str("module", "creds").Msg("write credential file")
	}
}
