package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiKV = "/api/kv"

// Remote talks to a server exposing the /api/kv endpoints, letting a client
// keep its collections on another machine.
type Remote struct {
	Client  *http.Client
	BaseURL string
}

// NewRemote returns a Remote medium for baseURL with a 10 second client timeout.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		Client:  &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (r *Remote) keyURL(key string) string {
	return r.BaseURL + apiKV + "/" + url.PathEscape(key)
}

func (r *Remote) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kv %s failed: %w", method, err)
	}
	return resp, nil
}

func serverError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server error: %s", strings.TrimSpace(string(data)))
}

func (r *Remote) Get(ctx context.Context, key string) (string, bool, error) {
	resp, err := r.do(ctx, http.MethodGet, r.keyURL(key), nil)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", false, err
		}
		return string(b), true, nil
	case http.StatusNotFound:
		return "", false, nil
	default:
		return "", false, serverError(resp)
	}
}

func (r *Remote) Set(ctx context.Context, key, value string) error {
	resp, err := r.do(ctx, http.MethodPut, r.keyURL(key), strings.NewReader(value))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return serverError(resp)
	}
	return nil
}

func (r *Remote) Remove(ctx context.Context, key string) error {
	resp, err := r.do(ctx, http.MethodDelete, r.keyURL(key), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return serverError(resp)
	}
	return nil
}

func (r *Remote) Keys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := r.do(ctx, http.MethodGet, r.BaseURL+apiKV+"?prefix="+url.QueryEscape(prefix), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}
	var keys []string
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return keys, nil
}
