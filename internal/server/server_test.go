package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/classplanner/internal/config"
)

// ====================================================================
// Test harness
// ====================================================================

type outbox struct {
	mu   sync.Mutex
	last map[string]string // recipient → body
}

func (o *outbox) Send(_ context.Context, _, recipient, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last[recipient] = body
	return nil
}

var confirmLink = regexp.MustCompile(`/auth/confirm/([A-Za-z0-9_.\-]+)`)

func (o *outbox) confirmPath(t *testing.T, recipient string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	m := confirmLink.FindStringSubmatch(o.last[recipient])
	require.Len(t, m, 2, "no confirm link mailed to %s", recipient)
	return m[0]
}

func testConfig() *config.Config {
	return &config.Config{
		Env:     config.EnvDevelopment,
		Port:    8080,
		BaseURL: "http://planner.test",
		Store:   config.StoreConfig{Driver: config.DriverSQLite, DBPath: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret:  "test_secret_at_least_16_chars",
			SessionTTL: time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		Log: config.LogConfig{Level: "info", Format: "text"},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *outbox) {
	t.Helper()
	box := &outbox{last: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(context.Background(), testConfig(), logger, WithMailer(box))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, box
}

// client is one browser: its own cookie jar.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, ts *httptest.Server) *client {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

func (c *client) decode(method, path string, body any, want int, dst any) {
	c.t.Helper()
	status, out := c.do(method, path, body)
	require.Equal(c.t, want, status, "%s %s: %s", method, path, out)
	if dst != nil {
		require.NoError(c.t, json.Unmarshal(out, dst))
	}
}

// signUp registers, confirms, and logs in.
func signUp(t *testing.T, ts *httptest.Server, box *outbox, email string) *client {
	t.Helper()
	c := newClient(t, ts)
	c.decode(http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": "password123", "confirm": "password123",
	}, http.StatusCreated, nil)
	c.decode(http.MethodGet, box.confirmPath(t, email), nil, http.StatusOK, nil)
	c.decode(http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "password123",
	}, http.StatusOK, nil)
	return c
}

type idView struct {
	ID string `json:"id"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ====================================================================
// Tests
// ====================================================================

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t, ts)

	status, body := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	status, body = c.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `route="/healthz"`)
}

func TestAPI_RequiresSession(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t, ts)

	status, _ := c.do(http.MethodGet, "/api/classes", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogin_UnverifiedAccount(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t, ts)
	c.decode(http.MethodPost, "/auth/register", map[string]string{
		"email": "ada@example.com", "password": "password123", "confirm": "password123",
	}, http.StatusCreated, nil)

	var e errorBody
	c.decode(http.MethodPost, "/auth/login", map[string]string{
		"email": "ada@example.com", "password": "password123",
	}, http.StatusUnauthorized, &e)
	assert.Equal(t, "Your email hasn't been verified yet.", e.Message)

	c.decode(http.MethodGet, "/auth/confirm/not-a-token", nil, http.StatusBadRequest, &e)
	assert.Equal(t, "invalid_token", e.Error)
}

func TestClassroomFlow(t *testing.T) {
	ts, box := newTestServer(t)
	ada := signUp(t, ts, box, "ada@example.com")
	bob := signUp(t, ts, box, "bob@example.com")

	var me struct {
		Email string `json:"email"`
	}
	ada.decode(http.MethodGet, "/api/me", nil, http.StatusOK, &me)
	assert.Equal(t, "ada@example.com", me.Email)

	var class idView
	ada.decode(http.MethodPost, "/api/classes", map[string]string{"name": "Algebra"}, http.StatusCreated, &class)
	require.NotEmpty(t, class.ID)

	var task idView
	ada.decode(http.MethodPost, "/api/classes/"+class.ID+"/tasks", map[string]any{
		"name": "Quiz 1", "date": "2024-03-05T14:30:00Z", "category": "quiz",
	}, http.StatusCreated, &task)

	// Outsiders get 404, not 403.
	bob.decode(http.MethodGet, "/api/classes/"+class.ID, nil, http.StatusNotFound, nil)
	bob.decode(http.MethodGet, "/api/tasks/"+task.ID, nil, http.StatusNotFound, nil)

	ada.decode(http.MethodPost, "/api/classes/"+class.ID+"/members",
		map[string]string{"email": "bob@example.com"}, http.StatusOK, nil)
	bob.decode(http.MethodPost, "/api/classes/"+class.ID+"/join", nil, http.StatusOK, nil)

	var bobs []idView
	bob.decode(http.MethodGet, "/api/classes", nil, http.StatusOK, &bobs)
	require.Len(t, bobs, 1)
	assert.Equal(t, class.ID, bobs[0].ID)

	// Members see but can't edit.
	bob.decode(http.MethodGet, "/api/tasks/"+task.ID, nil, http.StatusOK, nil)
	bob.decode(http.MethodPut, "/api/tasks/"+task.ID, map[string]string{"name": "mine"}, http.StatusForbidden, nil)
	bob.decode(http.MethodPut, "/api/classes/"+class.ID, map[string]string{"name": "mine"}, http.StatusForbidden, nil)

	var upcoming []idView
	bob.decode(http.MethodGet, "/api/tasks?limit=10", nil, http.StatusOK, &upcoming)
	require.Len(t, upcoming, 1)
	assert.Equal(t, task.ID, upcoming[0].ID)

	var cal struct {
		Weeks [][]struct {
			InMonth bool `json:"inMonth"`
			Classes []struct {
				Name  string   `json:"name"`
				Tasks []idView `json:"tasks"`
			} `json:"classes"`
		} `json:"weeks"`
	}
	bob.decode(http.MethodGet, "/api/calendar/2024/3", nil, http.StatusOK, &cal)
	require.Len(t, cal.Weeks, 6)
	march5 := cal.Weeks[1][2]
	require.Len(t, march5.Classes, 1)
	assert.Equal(t, "Algebra", march5.Classes[0].Name)
	assert.Equal(t, task.ID, march5.Classes[0].Tasks[0].ID)

	bob.decode(http.MethodGet, "/api/calendar/2024/13", nil, http.StatusBadRequest, nil)
	bob.decode(http.MethodGet, "/api/calendar/2024/march", nil, http.StatusBadRequest, nil)

	// Archiving cascades by default.
	ada.decode(http.MethodPost, "/api/classes/"+class.ID+"/archive", nil, http.StatusOK, nil)
	var archived struct {
		Archived bool `json:"archived"`
	}
	ada.decode(http.MethodGet, "/api/tasks/"+task.ID, nil, http.StatusOK, &archived)
	assert.True(t, archived.Archived)

	// Deleting the class takes its tasks and bob's link with it.
	ada.decode(http.MethodDelete, "/api/classes/"+class.ID, nil, http.StatusNoContent, nil)
	ada.decode(http.MethodGet, "/api/tasks/"+task.ID, nil, http.StatusNotFound, nil)
	bob.decode(http.MethodGet, "/api/classes?archived=all", nil, http.StatusOK, &bobs)
	assert.Empty(t, bobs)
}

func TestLogoutEndsSession(t *testing.T) {
	ts, box := newTestServer(t)
	ada := signUp(t, ts, box, "ada@example.com")

	ada.decode(http.MethodGet, "/api/me", nil, http.StatusOK, nil)
	ada.decode(http.MethodPost, "/auth/logout", nil, http.StatusOK, nil)
	ada.decode(http.MethodGet, "/api/me", nil, http.StatusUnauthorized, nil)
}

func TestRegister_DuplicateIsConflict(t *testing.T) {
	ts, box := newTestServer(t)
	signUp(t, ts, box, "ada@example.com")

	c := newClient(t, ts)
	var e errorBody
	c.decode(http.MethodPost, "/auth/register", map[string]string{
		"email": "ADA@example.com", "password": "password123", "confirm": "password123",
	}, http.StatusConflict, &e)
	assert.Equal(t, "conflict", e.Error)
}
