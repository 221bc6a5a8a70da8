// Package ai talks to the external text and vision collaborator. The
// collaborator is opaque: a prompt and an optional attachment go out, text
// comes back.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single request when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Output is the answer shape asked from the collaborator.
type Output string

const (
	OutputString Output = "string"
	OutputCode   Output = "code"
	OutputJSON   Output = "json"
)

// Config locates the collaborator and its credentials.
type Config struct {
	BaseURL  string
	TokenURL string
	Username string
	Password string
	APIKey   string
	Scope    string
	Model    string
	Timeout  time.Duration
}

// Attachment is a single binary file sent with a prompt. It travels base64
// encoded.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Request is one prompt.
type Request struct {
	Prompt     string      `json:"prompt"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Model      string      `json:"model,omitempty"`
	Output     Output      `json:"output,omitempty"`
	Priority   string      `json:"priority,omitempty"`
	Format     string      `json:"format,omitempty"`
}

// Response is the collaborator's answer. Raw is set when the body was not
// the expected JSON envelope and Text holds the body verbatim.
type Response struct {
	Text string
	JSON json.RawMessage
	Raw  bool
}

// Completer answers prompts. *Client is the production implementation.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Client is an HTTP Completer with a cached bearer token.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens *tokenSource
	log    *zap.Logger
}

// New returns a client for cfg. A nil httpClient uses one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: newTokenSource(cfg, httpClient),
		log:    log,
	}
}

// Configured reports whether Complete can be attempted at all.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.tokens.configured()
}

// Timeout is the per request deadline used by Go.
func (c *Client) Timeout() time.Duration { return c.cfg.Timeout }

// Complete sends req and returns the answer. Missing configuration fails
// with an *AuthError wrapping ErrNotConfigured before any network traffic.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if c.cfg.BaseURL == "" {
		return Response{}, &AuthError{Err: ErrNotConfigured}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return Response{}, err
	}
	if req.Model == "" {
		req.Model = c.cfg.Model
	}
	if req.Output == "" {
		req.Output = OutputString
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, &NetworkError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &NetworkError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &NetworkError{Status: resp.StatusCode, Detail: errorDetail(data)}
	}

	var envelope struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Response == nil {
		c.log.Warn("unexpected ai response shape, passing through raw text", zap.Int("bytes", len(data)))
		return Response{Text: string(data), Raw: true}, nil
	}
	out := Response{Text: *envelope.Response}
	if trimmed := stripFence(out.Text); json.Valid([]byte(trimmed)) {
		out.JSON = json.RawMessage(trimmed)
	}
	return out, nil
}

// errorDetail prefers the server's detail or message field over the raw body.
func errorDetail(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, k := range []string{"detail", "message", "error"} {
			if s, ok := fields[k].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}

// stripFence removes a surrounding markdown code fence, which models often
// add around JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
