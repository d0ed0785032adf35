package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tgpanel/core/internal/infrastructure/database"
	"github.com/tgpanel/core/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreateAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionPair, EntityType: EntityDevice, EntityID: "dev-1", UserID: "usr-a", CreatedAt: base},
		{Action: ActionCommand, EntityType: EntityDevice, EntityID: "dev-1", UserID: "usr-a", Outcome: "timeout",
			Details: map[string]any{"operation": "status"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionShare, EntityType: EntityDevice, EntityID: "dev-2", UserID: "usr-b", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if entries[0].ID == "" || entries[0].Outcome != "success" {
		t.Errorf("Create() did not fill defaults: %+v", entries[0])
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Logs) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3", all.Total, len(all.Logs))
	}
	if all.Logs[0].Action != ActionShare {
		t.Errorf("List() not newest first: %s", all.Logs[0].Action)
	}
	if all.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", all.Limit, defaultLimit)
	}

	timeouts, err := repo.List(ctx, Filter{EntityID: "dev-1", Outcome: "timeout"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if timeouts.Total != 1 || timeouts.Logs[0].Details["operation"] != "status" {
		t.Errorf("filtered List() = %+v", timeouts)
	}

	page, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 3 || len(page.Logs) != 1 || page.Logs[0].Action != ActionCommand {
		t.Errorf("paged List() = %+v", page)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := testRepo(t)
	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != maxLimit || res.Offset != 0 {
		t.Errorf("List() limit=%d offset=%d", res.Limit, res.Offset)
	}
}

func TestCreate_RequiresAction(t *testing.T) {
	repo := testRepo(t)
	if err := repo.Create(context.Background(), &AuditLog{EntityType: EntityDevice}); err == nil {
		t.Error("Create() without action should fail")
	}
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *AuditLog) error { return errors.New("disk full") }

type captureLogger struct{ msgs []string }

func (c *captureLogger) Warn(msg string, _ ...any) { c.msgs = append(c.msgs, msg) }

func TestRecorder(t *testing.T) {
	repo := testRepo(t)
	rec := NewRecorder(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec.Record(ctx, AuditLog{Action: ActionUnpair, EntityType: EntityDevice, EntityID: "dev-1"})

	res, err := repo.List(context.Background(), Filter{Action: ActionUnpair})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 {
		t.Errorf("Record() with cancelled context stored %d entries, want 1", res.Total)
	}

	logger := &captureLogger{}
	failing := NewRecorder(failingRepo{})
	failing.SetLogger(logger)
	failing.Record(context.Background(), AuditLog{Action: ActionPair, EntityType: EntityDevice})
	if len(logger.msgs) != 1 {
		t.Errorf("failed write logged %d times, want 1", len(logger.msgs))
	}

	var nilRec *Recorder
	nilRec.Record(context.Background(), AuditLog{})
}
