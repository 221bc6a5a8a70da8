package ai

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Go runs req on its own goroutine and hands the outcome to deliver. The
// returned cancel aborts the request; once cancel has returned, or ctx (the
// owner's lifetime) is done, deliver is never invoked. A cancel racing an
// in-flight delivery waits for it, so deliver must not call cancel. A request
// that merely times out is still delivered, with its error.
func Go(ctx context.Context, c Completer, req Request, deliver func(Response, error)) (cancel func()) {
	timeout := DefaultTimeout
	if t, ok := c.(interface{ Timeout() time.Duration }); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}
	runCtx, stop := context.WithCancel(ctx)

	var (
		mu    sync.Mutex
		alive = true
	)
	go func() {
		defer stop()
		callCtx, done := context.WithTimeout(runCtx, timeout)
		resp, err := c.Complete(callCtx, req)
		done()

		mu.Lock()
		defer mu.Unlock()
		if alive && ctx.Err() == nil {
			deliver(resp, err)
		}
		alive = false
	}()

	return func() {
		mu.Lock()
		alive = false
		mu.Unlock()
		stop()
	}
}

// ExtractInto asks for a JSON answer and decodes it into a draft entity. An
// answer that is not JSON comes back as text alongside a zero T.
func ExtractInto[T any](ctx context.Context, c Completer, prompt string, att *Attachment) (T, string, error) {
	var zero T
	resp, err := c.Complete(ctx, Request{Prompt: prompt, Attachment: att, Output: OutputJSON, Format: "json"})
	if err != nil {
		return zero, "", err
	}
	raw := resp.JSON
	if raw == nil {
		raw = json.RawMessage(stripFence(resp.Text))
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, resp.Text, nil
	}
	return v, resp.Text, nil
}
