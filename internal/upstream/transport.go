package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"shopfront/internal/bus"
	"shopfront/internal/domain"
	"shopfront/internal/observability"
)

// invalidTokenMessage is the message-level rejection some storefront API
// deployments return instead of a bare 401.
const invalidTokenMessage = "Unauthorized or invalid token"

// SessionSource is the slice of the session store the transport needs:
// the current credential and the ability to tear the session down when
// the upstream rejects it.
type SessionSource interface {
	ID() string
	Snapshot() domain.Session
	Clear(ctx context.Context) error
}

type contextKey string

const sessionSourceKey contextKey = "session_source"

// WithSession attaches the browser context's session source to ctx so the
// transport can authorize the outbound request.
func WithSession(ctx context.Context, src SessionSource) context.Context {
	return context.WithValue(ctx, sessionSourceKey, src)
}

func sessionFrom(ctx context.Context) (SessionSource, bool) {
	src, ok := ctx.Value(sessionSourceKey).(SessionSource)
	return src, ok
}

// exemptPath reports whether authorization failures on the path are
// expected (wrong password on login, etc.) and must not tear the session
// down.
func exemptPath(path string) bool {
	for _, marker := range []string{"/auth/", "/public/", "/register", "/login"} {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// AuthTransport is the single choke point for storefront API calls. It
// attaches the bearer token from the request's session source and reacts
// to authorization failures on protected paths by clearing the session
// and asking the browser context to re-authenticate. The original error
// always reaches the caller; nothing is retried here.
type AuthTransport struct {
	Base   http.RoundTripper
	Events *bus.Bus
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	src, hasSource := sessionFrom(req.Context())

	token := ""
	if hasSource {
		token = src.Snapshot().Token
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Teardown applies only to rejections of a credential we actually
	// sent, and never on auth/public endpoints where failures are routine.
	if token == "" || exemptPath(req.URL.Path) {
		return resp, nil
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	rejected := resp.StatusCode == http.StatusUnauthorized
	if !rejected {
		rejected = responseMessage(resp) == invalidTokenMessage
	}
	if !rejected {
		return resp, nil
	}

	ctx := req.Context()
	if err := src.Clear(ctx); err != nil {
		observability.Error("failed to clear rejected session",
			"context_id", src.ID(), "error", err.Error())
	}
	observability.SessionTeardownsTotal.Inc()
	observability.Warn("session torn down after upstream rejection",
		"context_id", src.ID(), "path", req.URL.Path, "status", resp.StatusCode)

	if t.Events != nil {
		t.Events.Publish(bus.Event{Type: bus.EventAuthPrompt, ContextID: src.ID()})
	}

	return resp, nil
}

// responseMessage peeks at the error body's message field, leaving the
// body readable for the caller.
func responseMessage(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.Message
}
