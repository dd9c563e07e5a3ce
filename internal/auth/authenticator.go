// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth implements the Gmail OAuth2 authorization-code flow and the
// token lifecycle: browser consent via a local redirect listener, code
// exchange, refresh, persistence and logout.
//
// The Authenticator owns the single TokenRecord. All mutations (exchange,
// refresh, logout) are serialized by one lock so a refresh can never race
// an exchange.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jobtrack/ingestion/internal/callback"
)

const (
	// DefaultRedirectPort is the local port registered as the OAuth redirect.
	DefaultRedirectPort = 8080

	ScopeGmailReadonly = "https://www.googleapis.com/auth/gmail.readonly"
	ScopeUserEmail     = "https://www.googleapis.com/auth/userinfo.email"
)

// DefaultScopes are requested when Config.Scopes is empty.
var DefaultScopes = []string{ScopeGmailReadonly, ScopeUserEmail}

// State is the authenticator's position in the login lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingCallback
	StateExchanging
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Method selects the authentication strategy.
type Method int

const (
	MethodBrowserRedirect Method = iota
	MethodWebView
	MethodDirectSession
)

func (m Method) String() string {
	switch m {
	case MethodBrowserRedirect:
		return "browser_redirect"
	case MethodWebView:
		return "web_view"
	case MethodDirectSession:
		return "direct_session"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// Config holds the OAuth client settings and lifecycle policy.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectPort int      // default 8080
	Scopes       []string // default DefaultScopes

	// AuthURL and TokenURL override Google's endpoints (tests).
	AuthURL  string
	TokenURL string

	CallbackTimeout time.Duration // default callback.DefaultTimeout
	FreshnessWindow time.Duration // default DefaultFreshnessWindow
	Method          Method

	// HTTPClient is used for token endpoint calls when set.
	HTTPClient *http.Client

	// OpenURL launches the browser. Defaults to OpenBrowser.
	OpenURL func(url string) error

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// AuthorizationRequest is the set of parameters sent to the consent page.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	Scopes       []string
	ResponseType string
	AccessType   string
	Prompt       string
}

// Authenticator drives the browser login and owns the token record.
type Authenticator struct {
	cfg   Config
	store *TokenStore
	oauth *oauth2.Config

	// mu serializes mutations of the token record.
	mu sync.Mutex

	stateMu sync.RWMutex
	state   State
	record  *TokenRecord
}

// NewAuthenticator creates an Authenticator persisting to store.
func NewAuthenticator(cfg Config, store *TokenStore) *Authenticator {
	if cfg.RedirectPort == 0 {
		cfg.RedirectPort = DefaultRedirectPort
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = callback.DefaultTimeout
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = OpenBrowser
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	a := &Authenticator{
		cfg:   cfg,
		store: store,
		state: StateUnauthenticated,
	}
	a.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  a.RedirectURI(),
		Scopes:       cfg.Scopes,
	}
	return a
}

// RedirectURI is the callback URL registered with the OAuth client.
func (a *Authenticator) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/callback", a.cfg.RedirectPort)
}

// NewAuthorizationRequest returns the consent parameters for this client.
func (a *Authenticator) NewAuthorizationRequest() AuthorizationRequest {
	return AuthorizationRequest{
		ClientID:     a.cfg.ClientID,
		RedirectURI:  a.RedirectURI(),
		Scopes:       a.cfg.Scopes,
		ResponseType: "code",
		AccessType:   "offline",
		Prompt:       "consent",
	}
}

// AuthURL builds the consent page URL. Offline access and forced consent
// make the provider return a refresh token on every login.
func (a *Authenticator) AuthURL() string {
	req := a.NewAuthorizationRequest()
	return a.oauth.AuthCodeURL("",
		oauth2.SetAuthURLParam("access_type", req.AccessType),
		oauth2.SetAuthURLParam("prompt", req.Prompt),
	)
}

// State returns the current lifecycle state.
func (a *Authenticator) State() State {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

// AccessToken returns the current access token.
func (a *Authenticator) AccessToken() (string, error) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	if a.record == nil || a.record.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return a.record.AccessToken, nil
}

// Record returns a copy of the held token record, or nil.
func (a *Authenticator) Record() *TokenRecord {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	if a.record == nil {
		return nil
	}
	rec := *a.record
	return &rec
}

// Restore loads a fresh persisted record into memory without any user
// interaction. It reports whether the authenticator is now authenticated.
func (a *Authenticator) Restore() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.restoreLocked()
}

func (a *Authenticator) restoreLocked() bool {
	rec, err := a.store.Load()
	if err != nil {
		slog.Warn("ignoring unreadable token file", "path", a.store.Path(), "error", err)
		return false
	}
	if !rec.Fresh(a.cfg.Now(), a.cfg.FreshnessWindow) {
		if rec != nil {
			slog.Info("stored tokens are stale", "issued_at", rec.IssuedAt)
		}
		return false
	}
	a.setRecord(StateAuthenticated, rec)
	return true
}

// Authenticate ensures the authenticator holds tokens. A fresh persisted
// record is used as is and no browser is opened. Otherwise the consent page
// is opened, the redirect is awaited and the code is exchanged.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	if a.cfg.Method != MethodBrowserRedirect {
		return fmt.Errorf("%w: %s", ErrUnsupportedMethod, a.cfg.Method)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.restoreLocked() {
		slog.Info("using stored tokens")
		return nil
	}

	addr := fmt.Sprintf("localhost:%d", a.cfg.RedirectPort)
	ln, err := callback.Start(ctx, addr)
	if err != nil {
		return fmt.Errorf("start callback listener: %w", err)
	}
	defer ln.Stop()

	a.setState(StateAwaitingCallback)

	authURL := a.AuthURL()
	if err := a.cfg.OpenURL(authURL); err != nil {
		slog.Warn("could not open browser, visit the URL manually", "url", authURL, "error", err)
	} else {
		slog.Info("opened browser for consent", "redirect_uri", a.RedirectURI())
	}

	code, err := ln.AwaitCode(ctx, a.cfg.CallbackTimeout)
	if err != nil {
		a.setState(StateUnauthenticated)
		return fmt.Errorf("await authorization code: %w", err)
	}

	return a.exchangeLocked(ctx, code)
}

// ExchangeCode trades an authorization code for tokens and persists them.
// A response without both tokens is a failure. Failures are not retried.
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exchangeLocked(ctx, code)
}

func (a *Authenticator) exchangeLocked(ctx context.Context, code string) error {
	a.setState(StateExchanging)

	tok, err := a.oauth.Exchange(a.httpContext(ctx), code)
	if err != nil {
		a.setRecord(StateUnauthenticated, nil)
		return wrapTokenError("exchange", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		a.setRecord(StateUnauthenticated, nil)
		return &Error{Op: "exchange", Err: ErrMissingToken,
			Hint: "Revoke the app's access in your Google account and log in again so a refresh token is issued."}
	}

	rec := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IssuedAt:     a.cfg.Now(),
	}
	a.setRecord(StateAuthenticated, rec)
	slog.Info("authorization code exchanged")

	if err := a.store.Save(*rec); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	return nil
}

// Refresh mints a new access token from the held refresh token. The refresh
// token itself is kept. On failure the in-memory tokens are cleared and the
// state drops to StateUnauthenticated; the persisted record is left alone.
func (a *Authenticator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stateMu.RLock()
	var refreshToken string
	if a.record != nil {
		refreshToken = a.record.RefreshToken
	}
	a.stateMu.RUnlock()

	if refreshToken == "" {
		a.setRecord(StateUnauthenticated, nil)
		return ErrNotAuthenticated
	}

	a.setState(StateRefreshing)

	src := a.oauth.TokenSource(a.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		a.setRecord(StateUnauthenticated, nil)
		return wrapTokenError("refresh", err)
	}
	if tok.AccessToken == "" {
		a.setRecord(StateUnauthenticated, nil)
		return &Error{Op: "refresh", Err: ErrMissingToken}
	}

	rec := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		IssuedAt:     a.cfg.Now(),
	}
	a.setRecord(StateAuthenticated, rec)
	slog.Info("access token refreshed")

	if err := a.store.Save(*rec); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	return nil
}

// Logout forgets the tokens and deletes the persisted record.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.setRecord(StateUnauthenticated, nil)
	if err := a.store.Delete(); err != nil {
		return err
	}
	slog.Info("logged out", "path", a.store.Path())
	return nil
}

func (a *Authenticator) httpContext(ctx context.Context) context.Context {
	if a.cfg.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
}

func (a *Authenticator) setState(s State) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

func (a *Authenticator) setRecord(s State, rec *TokenRecord) {
	a.stateMu.Lock()
	a.state = s
	a.record = rec
	a.stateMu.Unlock()
}
