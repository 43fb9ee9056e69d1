//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"testing"
	"time"
)

// TestClient is one simulated browser: it keeps the context and CSRF
// cookies across requests the way a real browser would.
type TestClient struct {
	*http.Client
	t *testing.T
}

// NewTestClient creates a client with a fresh cookie jar, i.e. a brand
// new browser context.
func NewTestClient(t *testing.T) *TestClient {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}

	return &TestClient{
		Client: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// guard redirects are assertions, not navigation
				return http.ErrUseLastResponse
			},
		},
		t: t,
	}
}

// csrfToken pulls the CSRF cookie, making a safe request first to mint
// it when missing.
func (tc *TestClient) csrfToken() string {
	tc.t.Helper()

	base, _ := url.Parse(baseURL)
	find := func() string {
		for _, c := range tc.Jar.Cookies(base) {
			if c.Name == "shopfront_csrf" {
				return c.Value
			}
		}
		return ""
	}

	if token := find(); token != "" {
		return token
	}

	resp, err := tc.Get(baseURL + "/api/products")
	if err != nil {
		tc.t.Fatalf("failed to mint csrf token: %v", err)
	}
	resp.Body.Close()

	token := find()
	if token == "" {
		tc.t.Fatal("no csrf cookie after safe request")
	}
	return token
}

// PostJSON sends a JSON POST with the CSRF header set.
func (tc *TestClient) PostJSON(path string, body any) *http.Response {
	tc.t.Helper()
	return tc.sendJSON(http.MethodPost, path, body)
}

// PatchJSON sends a JSON PATCH with the CSRF header set.
func (tc *TestClient) PatchJSON(path string, body any) *http.Response {
	tc.t.Helper()
	return tc.sendJSON(http.MethodPatch, path, body)
}

// Delete sends a DELETE with the CSRF header set.
func (tc *TestClient) Delete(path string) *http.Response {
	tc.t.Helper()
	return tc.sendJSON(http.MethodDelete, path, nil)
}

func (tc *TestClient) sendJSON(method, path string, body any) *http.Response {
	tc.t.Helper()

	token := tc.csrfToken()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			tc.t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		tc.t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)

	resp, err := tc.Do(req)
	if err != nil {
		tc.t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

// GetJSON fetches path and decodes the body into out.
func (tc *TestClient) GetJSON(path string, out any) *http.Response {
	tc.t.Helper()

	resp, err := tc.Get(baseURL + path)
	if err != nil {
		tc.t.Fatalf("request GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			tc.t.Fatalf("failed to decode GET %s response: %v", path, err)
		}
	}
	return resp
}

// Register creates an account through the gateway.
func (tc *TestClient) Register(name, email, password string) *http.Response {
	tc.t.Helper()
	return tc.PostJSON("/api/auth/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

// Login establishes a session through the gateway.
func (tc *TestClient) Login(email, password string) *http.Response {
	tc.t.Helper()
	return tc.PostJSON("/api/auth/login", map[string]string{
		"email": email, "password": password,
	})
}

// sessionState is the gateway's view of the context's session.
type sessionState struct {
	Authenticated bool   `json:"authenticated"`
	Role          string `json:"role"`
	User          *struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

// Session fetches /api/auth/me.
func (tc *TestClient) Session() sessionState {
	tc.t.Helper()

	var state sessionState
	resp := tc.GetJSON("/api/auth/me", &state)
	if resp.StatusCode != http.StatusOK {
		tc.t.Fatalf("session check returned %d", resp.StatusCode)
	}
	return state
}

// uniqueEmail builds an email no previous test registered.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

func closeBody(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func decodeResponse(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
