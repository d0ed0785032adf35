package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tgpanel/core/internal/audit"
	"github.com/tgpanel/core/internal/auth"
	"github.com/tgpanel/core/internal/command"
	"github.com/tgpanel/core/internal/correlation"
	"github.com/tgpanel/core/internal/device"
	"github.com/tgpanel/core/internal/firmware"
	"github.com/tgpanel/core/internal/infrastructure/config"
	"github.com/tgpanel/core/internal/infrastructure/database"
	"github.com/tgpanel/core/internal/infrastructure/logging"
	"github.com/tgpanel/core/internal/infrastructure/mqtt"
	"github.com/tgpanel/core/internal/infrastructure/mqtt/mqtttest"
	"github.com/tgpanel/core/internal/user"
	"github.com/tgpanel/core/migrations"
)

const (
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
	testBotToken  = "123456:test-bot-token"
)

// fakeFirmware is a FirmwareSource with canned answers.
type fakeFirmware struct {
	mu         sync.Mutex
	latest     *firmware.Release
	webhookErr error
	webhooks   int
}

func (f *fakeFirmware) Latest() (firmware.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return firmware.Release{}, firmware.ErrNoRelease
	}
	return *f.latest, nil
}

func (f *fakeFirmware) HandleWebhook(_ context.Context, body []byte, signature string) (firmware.WebhookResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks++
	if err := firmware.VerifySignature(body, signature, "hook-secret"); err != nil {
		return firmware.WebhookResult{}, err
	}
	if f.webhookErr != nil {
		return firmware.WebhookResult{}, f.webhookErr
	}
	return firmware.WebhookResult{State: "SUCCESSFUL", Refreshed: true, Release: f.latest}, nil
}

// failingCheck is a HealthChecker that always fails.
type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return mqtt.ErrNotConnected }

// testEnv is a server wired to real repositories and an in-memory broker.
type testEnv struct {
	handler  http.Handler
	srv      *Server
	broker   *mqtttest.Broker
	db       *database.DB
	devices  *device.Directory
	users    *user.SQLiteRepository
	shares   *user.SQLiteShareRepository
	audit    *audit.SQLiteRepository
	firmware *fakeFirmware

	alice, bob           *user.User
	aliceToken, bobToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}

	dir, err := device.NewDirectory(device.NewSQLiteRepository(db.DB), 16)
	if err != nil {
		t.Fatalf("NewDirectory() error: %v", err)
	}
	users := user.NewSQLiteRepository(db.DB)
	shares := user.NewSQLiteShareRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	broker := mqtttest.NewBroker()
	client := mqtt.NewClient(broker, config.MQTTConfig{QoS: 1})
	broker.Attach(client.Dispatch)
	reg := correlation.NewRegistry(client)
	t.Cleanup(func() { reg.Close() }) //nolint:errcheck // test cleanup

	cmds, err := command.NewService(command.Deps{
		Caller:    reg,
		Publisher: client,
		Directory: dir,
		Committer: dir,
	}, command.Config{
		PairTimeout:   200 * time.Millisecond,
		StatusTimeout: 200 * time.Millisecond,
		Delivery:      mqtt.DeliveryOptions{Assurance: mqtt.AtLeastOnce},
	})
	if err != nil {
		t.Fatalf("command.NewService() error: %v", err)
	}

	fw := &fakeFirmware{}
	log := logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
	srv, err := New(Deps{
		Security: config.SecurityConfig{
			JWT:      config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
			Telegram: config.TelegramConfig{BotToken: testBotToken, InitDataMaxAge: time.Hour},
		},
		Logger:    log,
		Commands:  cmds,
		Devices:   dir,
		Users:     users,
		Shares:    shares,
		AuditRepo: auditRepo,
		Firmware:  fw,
		Health:    map[string]HealthChecker{"mqtt": client, "database": db},
		Requests:  reg,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	env := &testEnv{
		handler:  srv.Handler(),
		srv:      srv,
		broker:   broker,
		db:       db,
		devices:  dir,
		users:    users,
		shares:   shares,
		audit:    auditRepo,
		firmware: fw,
	}
	env.alice, env.aliceToken = env.mustUser(t, 1001, "Alice")
	env.bob, env.bobToken = env.mustUser(t, 1002, "Bob")
	return env
}

func (e *testEnv) mustUser(t *testing.T, telegramID int64, name string) (*user.User, string) {
	t.Helper()
	u := &user.User{TelegramID: telegramID, Name: name}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user %s: %v", name, err)
	}
	token, err := auth.GenerateAccessToken(u.ID, u.TelegramID, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}
	return u, token
}

// mustDevice pairs serial to owner directly in the store.
func (e *testEnv) mustDevice(t *testing.T, serial, owner string) *device.Device {
	t.Helper()
	dev, err := e.devices.CommitPairing(context.Background(), serial, "Device "+serial, owner)
	if err != nil {
		t.Fatalf("CommitPairing(%s) error: %v", serial, err)
	}
	return dev
}

// answer makes the broker reply to every request on serial/op with body.
func (e *testEnv) answer(serial, op, body string) {
	e.broker.Respond(serial+"/"+op+"/req", func(string, []byte) {
		e.broker.Inject(serial+"/"+op+"/res", []byte(body))
	})
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

// expectError checks status and error code of an error response.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) Error {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var e Error
	decodeBody(t, w, &e)
	if e.Code != code {
		t.Errorf("code = %q, want %q", e.Code, code)
	}
	return e
}
