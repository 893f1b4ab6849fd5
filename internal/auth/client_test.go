package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/creds"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *creds.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := creds.NewStore(filepath.Join(t.TempDir(), "credentials.bin"))
	c := NewClient(srv.URL, store, 5*time.Second)
	t.Cleanup(c.Stop)
	return c, store
}

func TestLoginSuccessStoresTokens(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "secret1" {
			t.Errorf("unexpected body %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken":  "acc-1",
			"refreshToken": "ref-1",
			"expiresIn":    900000,
		})
	}))

	res := c.Login(context.Background(), "alice", "secret1", false)
	if !res.Success {
		t.Fatalf("login failed: %s", res.Message)
	}
	if res.Token != "acc-1" {
		t.Fatalf("token = %q", res.Token)
	}
	if token, ok := store.AccessToken(); !ok || token != "acc-1" {
		t.Fatalf("stored token = %q, ok=%v", token, ok)
	}
	if !store.IsLoggedIn() {
		t.Fatal("should be logged in after login")
	}
}

func TestLoginFailureSurfacesServerMessage(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid credentials"})
	}))

	res := c.Login(context.Background(), "alice", "wrong", false)
	if res.Success {
		t.Fatal("login should fail")
	}
	if res.Message != "invalid credentials" {
		t.Fatalf("message = %q", res.Message)
	}
	if store.IsLoggedIn() {
		t.Fatal("failed login must not store credentials")
	}
}

func TestLoginTransportFailureBecomesResult(t *testing.T) {
	store := creds.NewStore(filepath.Join(t.TempDir(), "credentials.bin"))
	c := NewClient("http://127.0.0.1:1", store, 500*time.Millisecond)
	res := c.Login(context.Background(), "alice", "secret1", false)
	if res.Success {
		t.Fatal("unreachable server cannot succeed")
	}
	if !strings.HasPrefix(res.Message, "Connection failed:") {
		t.Fatalf("message = %q", res.Message)
	}
}

func TestRefreshWithoutTokenIsLocalFailure(t *testing.T) {
	called := atomic.Bool{}
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))
	res := c.Refresh(context.Background())
	if res.Success {
		t.Fatal("refresh without a refresh token must fail")
	}
	if called.Load() {
		t.Fatal("no network call expected")
	}
}

func TestRefreshRejectionClearsCredentials(t *testing.T) {
	authRequired := atomic.Bool{}
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"accessToken": "acc-1", "refreshToken": "ref-1", "expiresIn": 90000,
			})
		case "/api/auth/refresh":
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "refresh token expired"})
		}
	}))
	c.OnAuthRequired = func() { authRequired.Store(true) }

	if res := c.Login(context.Background(), "alice", "secret1", false); !res.Success {
		t.Fatalf("login: %s", res.Message)
	}
	if !store.IsLoggedIn() {
		t.Fatal("precondition: logged in")
	}

	res := c.Refresh(context.Background())
	if res.Success {
		t.Fatal("refresh should be rejected")
	}
	if store.IsLoggedIn() {
		t.Fatal("rejected refresh must clear all credentials")
	}
	if !authRequired.Load() {
		t.Fatal("OnAuthRequired must fire after a failed refresh")
	}
}

func TestLogoutSucceedsWithUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "acc-1", "refreshToken": "ref-1",
		})
	}))
	store := creds.NewStore(filepath.Join(t.TempDir(), "credentials.bin"))
	c := NewClient(srv.URL, store, time.Second)
	t.Cleanup(c.Stop)
	if res := c.Login(context.Background(), "alice", "secret1", false); !res.Success {
		t.Fatalf("login: %s", res.Message)
	}
	srv.Close() // server goes away before logout

	res := c.Logout(context.Background())
	if !res.Success {
		t.Fatal("logout is guaranteed to succeed locally")
	}
	if store.IsLoggedIn() {
		t.Fatal("logout must clear local credentials")
	}
}

func TestLogoutWithoutRefreshSkipsServer(t *testing.T) {
	hits := atomic.Int32{}
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	store.Store("acc", "", time.Hour, "alice", false)

	if res := c.Logout(context.Background()); !res.Success {
		t.Fatal("logout failed")
	}
	if hits.Load() != 0 {
		t.Fatal("no refresh token, no server notification")
	}
}

func TestRefreshDelayArithmetic(t *testing.T) {
	// 900000 ms lifetime refreshes at 840000 ms, not earlier, not at expiry.
	if got := RefreshDelay(900 * time.Second); got != 840*time.Second {
		t.Fatalf("delay = %v, want 840s", got)
	}
	// Tiny lifetimes are clamped to the floor.
	if got := RefreshDelay(45 * time.Second); got != 30*time.Second {
		t.Fatalf("delay = %v, want 30s floor", got)
	}
	if got := RefreshDelay(0); got != 30*time.Second {
		t.Fatalf("delay = %v, want 30s floor", got)
	}
}

func (c *Client) timerArmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func TestScheduledRefreshRetriesAfterTransportFailure(t *testing.T) {
	store := creds.NewStore(filepath.Join(t.TempDir(), "credentials.bin"))
	store.Store("acc", "ref", time.Hour, "alice", false)
	c := NewClient("http://127.0.0.1:1", store, 500*time.Millisecond)
	t.Cleanup(c.Stop)

	c.refreshNow()

	// The refresh token survived the blip, so a retry must be pending.
	if !store.IsLoggedIn() {
		t.Fatal("transport failure must not clear credentials")
	}
	if !c.timerArmed() {
		t.Fatal("a failed scheduled refresh must rearm a retry")
	}
}

func TestScheduledRefreshDoesNotRetryAfterRejection(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "refresh token expired"})
	}))
	store.Store("acc", "ref", time.Hour, "alice", false)

	c.refreshNow()

	if store.IsLoggedIn() {
		t.Fatal("rejection must clear credentials")
	}
	if c.timerArmed() {
		t.Fatal("nothing left to refresh with, no retry may be pending")
	}
}

func TestGetValidAccessTokenTriggersRefresh(t *testing.T) {
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/refresh" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessToken": "acc-2", "expiresIn": 900000,
		})
	}))
	// Expired access, live refresh.
	store.Store("acc-1", "ref-1", time.Minute, "alice", false)
	time.Sleep(10 * time.Millisecond) // margin already pushed expiry into the past

	token, ok := c.GetValidAccessToken(context.Background())
	if !ok || token != "acc-2" {
		t.Fatalf("token = %q, ok=%v", token, ok)
	}
}
