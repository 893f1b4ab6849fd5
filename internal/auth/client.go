// Package auth drives the relay server's HTTP auth surface and owns the
// proactive refresh timer.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vijayvir/ScreenAiClient-sub000/internal/creds"
)

const (
	defaultExpiresIn = 900 * time.Second

	// The timer fires a minute before expiry, but never sooner than 30s
	// out, so a server handing out tiny lifetimes cannot turn this into a
	// refresh loop.
	refreshMargin = time.Minute
	refreshFloor  = 30 * time.Second
)

// Result is the uniform outcome of every auth exchange. Network failures
// become failed Results, never errors to the caller.
type Result struct {
	Success bool
	Message string
	Token   string
}

type Client struct {
	http    *http.Client
	baseURL string
	store   *creds.Store

	// OnAuthRequired fires after a failed refresh has cleared the local
	// credentials; the session is gone and the user must log in again.
	OnAuthRequired func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewClient(baseURL string, store *creds.Store, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		store:   store,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // milliseconds
	Message      string `json:"message"`
	Error        string `json:"error"`
}

func (r *tokenResponse) expiresIn() time.Duration {
	if r.ExpiresIn <= 0 {
		return defaultExpiresIn
	}
	return time.Duration(r.ExpiresIn) * time.Millisecond
}

func (r *tokenResponse) failureMessage() string {
	if r.Message != "" {
		return r.Message
	}
	if r.Error != "" {
		return r.Error
	}
	return "authentication failed"
}

func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) Result {
	return c.credentialExchange(ctx, "/api/auth/login", username, password, rememberMe)
}

func (c *Client) Register(ctx context.Context, username, password string, rememberMe bool) Result {
	return c.credentialExchange(ctx, "/api/auth/register", username, password, rememberMe)
}

func (c *Client) credentialExchange(ctx context.Context, path, username, password string, rememberMe bool) Result {
	body := map[string]string{"username": username, "password": password}
	status, resp, err := c.post(ctx, path, body, "")
	if err != nil {
		return Result{Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	if status != http.StatusOK {
		return Result{Message: resp.failureMessage()}
	}
	c.store.Store(resp.AccessToken, resp.RefreshToken, resp.expiresIn(), username, rememberMe)
	c.scheduleRefresh(resp.expiresIn())
	log.Info().Str("module", "auth").Str("username", username).Msg("authenticated")
	return Result{Success: true, Token: resp.AccessToken}
}

// Refresh exchanges the stored refresh token for a new access token. A
// failed refresh invalidates the whole session: credentials are cleared
// and OnAuthRequired fires.
func (c *Client) Refresh(ctx context.Context) Result {
	refresh, ok := c.store.RefreshToken()
	if !ok {
		return Result{Message: "no refresh token"}
	}
	status, resp, err := c.post(ctx, "/api/auth/refresh", map[string]string{"refreshToken": refresh}, "")
	if err != nil {
		return Result{Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	if status != http.StatusOK {
		log.Warn().Str("module", "auth").Int("status", status).Msg("refresh rejected, clearing session")
		c.store.Clear()
		c.stopTimer()
		if c.OnAuthRequired != nil {
			c.OnAuthRequired()
		}
		return Result{Message: resp.failureMessage()}
	}
	c.store.UpdateAccess(resp.AccessToken, resp.expiresIn())
	c.scheduleRefresh(resp.expiresIn())
	log.Debug().Str("module", "auth").Msg("access token refreshed")
	return Result{Success: true, Token: resp.AccessToken}
}

// Logout clears local state first; it succeeds even when the server is
// unreachable. The server is only told when there was a refresh token to
// revoke, and its answer is ignored.
func (c *Client) Logout(ctx context.Context) Result {
	refresh, hadRefresh := c.store.RefreshToken()
	access, _ := c.store.AccessToken()
	c.store.Clear()
	c.stopTimer()
	if hadRefresh {
		if _, _, err := c.post(ctx, "/api/auth/logout", map[string]string{"refreshToken": refresh}, access); err != nil {
			log.Warn().Err(err).Str("module", "auth").Msg("server logout failed, local logout already done")
		}
	}
	log.Info().Str("module", "auth").Msg("logged out")
	return Result{Success: true}
}

// ValidateToken asks the server whether the current access token is live.
func (c *Client) ValidateToken(ctx context.Context) Result {
	access, ok := c.store.AccessToken()
	if !ok {
		return Result{Message: "no access token"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/validate", nil)
	if err != nil {
		return Result{Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+access)
	httpResp, err := c.http.Do(req)
	if err != nil {
		return Result{Message: fmt.Sprintf("Connection failed: %v", err)}
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return Result{Message: "token invalid"}
	}
	return Result{Success: true, Token: access}
}

// GetValidAccessToken is the single "give me a token right now" entry
// point: cached if still valid, otherwise one refresh attempt.
func (c *Client) GetValidAccessToken(ctx context.Context) (string, bool) {
	if token, ok := c.store.AccessToken(); ok {
		return token, true
	}
	if _, ok := c.store.RefreshToken(); !ok {
		return "", false
	}
	res := c.Refresh(ctx)
	if !res.Success {
		return "", false
	}
	return res.Token, true
}

// scheduleRefresh (re)arms the single refresh timer. Arming cancels any
// previous timer; there is exactly one pending refresh at a time.
func (c *Client) scheduleRefresh(expiresIn time.Duration) {
	c.armTimer(RefreshDelay(expiresIn))
}

func (c *Client) armTimer(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(delay, c.refreshNow)
	log.Debug().Str("module", "auth").Dur("delay", delay).Msg("refresh scheduled")
}

// refreshNow is the timer body. A successful refresh rearms through
// scheduleRefresh; a rejection has already cleared the refresh token. A
// transport blip leaves the token in place, so retry at the floor delay
// instead of going silent until the next GetValidAccessToken call.
func (c *Client) refreshNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if res := c.Refresh(ctx); res.Success {
		return
	}
	if _, ok := c.store.RefreshToken(); ok {
		log.Warn().Str("module", "auth").Dur("retry", refreshFloor).Msg("scheduled refresh failed, retrying")
		c.armTimer(refreshFloor)
	}
}

// Stop cancels any pending refresh. Safe to call repeatedly.
func (c *Client) Stop() {
	c.stopTimer()
}

func (c *Client) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// RefreshDelay exposes the timer arithmetic for callers that display it.
func RefreshDelay(expiresIn time.Duration) time.Duration {
	delay := expiresIn - refreshMargin
	if delay < refreshFloor {
		delay = refreshFloor
	}
	return delay
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string) (int, *tokenResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer httpResp.Body.Close()

	var resp tokenResponse
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err == nil && len(data) > 0 {
		// A non-JSON error body is fine; the default failure message covers it.
		_ = json.Unmarshal(data, &resp)
	}
	return httpResp.StatusCode, &resp, nil
}
