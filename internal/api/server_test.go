package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/auth"
	"github.com/tgpanel/core/internal/infrastructure/config"
	"github.com/tgpanel/core/internal/infrastructure/logging"
)

func TestNewRequiresDependencies(t *testing.T) {
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{}, "test")
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger: expected error")
	}
	if _, err := New(Deps{Logger: log}); err == nil {
		t.Error("New() without services: expected error")
	}
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var resp struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		Components map[string]string `json:"components"`
	}
	decodeBody(t, w, &resp)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.Components["mqtt"] != "ok" || resp.Components["database"] != "ok" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestHealthReportsRequestStats(t *testing.T) {
	env := newTestEnv(t)
	dev := env.mustDevice(t, "SN050", env.alice.ID)

	// Nobody answers, so the status query times out.
	expectError(t, env.do(t, http.MethodGet, "/api/v1/devices/"+dev.ID+"/status", env.aliceToken, nil),
		http.StatusGatewayTimeout, ErrCodeTimeout)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	var resp struct {
		Requests struct {
			Pending  int    `json:"pending"`
			TimedOut uint64 `json:"timed_out"`
		} `json:"requests"`
	}
	decodeBody(t, w, &resp)
	if resp.Requests.TimedOut != 1 || resp.Requests.Pending != 0 {
		t.Errorf("requests = %+v, want one timed out and none pending", resp.Requests)
	}
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.srv.health["broker"] = failingCheck{}

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", w.Code)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://web.telegram.org"}}
	handler := env.srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "https://web.telegram.org")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://web.telegram.org" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin %q", got)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/users/" + env.alice.ID + "/devices"

	expectError(t, env.do(t, http.MethodGet, path, "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
	expectError(t, env.do(t, http.MethodGet, path, "not-a-jwt", nil), http.StatusUnauthorized, ErrCodeUnauthorized)

	forged, err := auth.GenerateAccessToken(env.alice.ID, env.alice.TelegramID, "some-other-secret", 15)
	if err != nil {
		t.Fatal(err)
	}
	expectError(t, env.do(t, http.MethodGet, path, forged, nil), http.StatusUnauthorized, ErrCodeUnauthorized)

	if w := env.do(t, http.MethodGet, path, env.aliceToken, nil); w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", w.Code)
	}
}

func TestWebAppMounted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/app", "", nil)
	if w.Code != http.StatusMovedPermanently {
		t.Errorf("GET /app: status = %d, want 301", w.Code)
	}
	w = env.do(t, http.MethodGet, "/app/", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET /app/: status = %d, want 200", w.Code)
	}
}

// ─── Telegram login ────────────────────────────────────────────────

func initData(telegramID int64, firstName string, at time.Time) string {
	v := url.Values{}
	v.Set("user", `{"id":`+strconv.FormatInt(telegramID, 10)+`,"first_name":"`+firstName+`"}`)
	v.Set("auth_date", strconv.FormatInt(at.Unix(), 10))
	return auth.SignInitData(v, testBotToken)
}

func TestTelegramLogin(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]string{"init_data": initData(2001, "Carol", time.Now())}

	w := env.do(t, http.MethodPost, "/api/v1/auth/telegram", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d (%s)", w.Code, w.Body.String())
	}
	var resp loginResponse
	decodeBody(t, w, &resp)
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 15*60 {
		t.Errorf("login response = %+v", resp)
	}
	if resp.User == nil || resp.User.TelegramID != 2001 || resp.User.Name != "Carol" {
		t.Fatalf("user = %+v", resp.User)
	}

	claims, err := auth.ParseToken(resp.AccessToken, testJWTSecret)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.Subject != resp.User.ID || claims.TelegramID != 2001 {
		t.Errorf("claims = %+v", claims)
	}

	// Second login finds the same account.
	w = env.do(t, http.MethodPost, "/api/v1/auth/telegram", "", body)
	var again loginResponse
	decodeBody(t, w, &again)
	if again.User == nil || again.User.ID != resp.User.ID {
		t.Errorf("second login user = %+v, want %s", again.User, resp.User.ID)
	}

	logs, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionLogin, UserID: resp.User.ID})
	if err != nil {
		t.Fatal(err)
	}
	if logs.Total != 2 {
		t.Errorf("login audit entries = %d, want 2", logs.Total)
	}
}

func TestTelegramLoginRejected(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"bad json", "{"},
		{"empty", map[string]string{"init_data": ""}},
		{"stale", map[string]string{"init_data": initData(2001, "Carol", time.Now().Add(-2*time.Hour))}},
		{"wrong bot", map[string]string{"init_data": func() string {
			v := url.Values{}
			v.Set("user", `{"id":2001,"first_name":"Carol"}`)
			v.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
			return auth.SignInitData(v, "999:other-bot")
		}()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/telegram", "", tt.body)
			if w.Code != http.StatusBadRequest && w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 400 or 401", w.Code)
			}
		})
	}
}
