package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// refreshSkew renews a token this long before it expires.
	refreshSkew = 60 * time.Second
	// fallbackTTL applies when neither expires_in nor an exp claim is present.
	fallbackTTL = 5 * time.Minute
)

type tokenSource struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newTokenSource(cfg Config, httpClient *http.Client) *tokenSource {
	return &tokenSource{cfg: cfg, http: httpClient, now: time.Now}
}

func (t *tokenSource) configured() bool {
	if t.cfg.TokenURL == "" {
		return false
	}
	return t.cfg.APIKey != "" || (t.cfg.Username != "" && t.cfg.Password != "")
}

// Token returns a cached bearer token, exchanging credentials when the cache
// is empty or within refreshSkew of expiry.
func (t *tokenSource) Token(ctx context.Context) (string, error) {
	if !t.configured() {
		return "", &AuthError{Err: ErrNotConfigured}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token != "" && t.now().Add(refreshSkew).Before(t.expiry) {
		return t.token, nil
	}
	token, expiry, err := t.exchange(ctx)
	if err != nil {
		return "", err
	}
	t.token, t.expiry = token, expiry
	return token, nil
}

// Invalidate drops the cached token.
func (t *tokenSource) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	t.expiry = time.Time{}
}

func (t *tokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	form := url.Values{}
	form.Set("username", t.cfg.Username)
	form.Set("password", t.cfg.Password)
	form.Set("api_key", t.cfg.APIKey)
	if t.cfg.Scope != "" {
		form.Set("scope", t.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", time.Time{}, &AuthError{Err: fmt.Errorf("token exchange: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &AuthError{Err: fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, errorDetail(body))}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", time.Time{}, &AuthError{Err: fmt.Errorf("invalid token response: %w", err)}
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, &AuthError{Err: errors.New("token response carries no access_token")}
	}

	now := t.now()
	if tok.ExpiresIn > 0 {
		return tok.AccessToken, now.Add(time.Duration(tok.ExpiresIn) * time.Second), nil
	}
	if exp, ok := jwtExpiry(tok.AccessToken); ok {
		return tok.AccessToken, exp, nil
	}
	return tok.AccessToken, now.Add(fallbackTTL), nil
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is only inspected for caching, never trusted.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
