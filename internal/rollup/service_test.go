package rollup

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	snapshotservice "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWorkspaceID = snowflake.ID(7001)

func setupRollup(t *testing.T) (*Service, snapshotdomain.Store) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&workspacedomain.Workspace{},
		&snapshotdomain.MetricSnapshot{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&workspacedomain.Workspace{
		ID:       testWorkspaceID,
		Name:     "acme",
		Timezone: "UTC",
	}).Error; err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	resolver := workspace.NewResolver(db)
	store := snapshotservice.NewService(snapshotservice.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clock.SystemClock{},
		Workspaces: resolver,
	})
	svc := NewService(Params{
		Log:        zap.NewNop(),
		Store:      store,
		Workspaces: resolver,
	})
	return svc, store
}

func upsertDaily(t *testing.T, store snapshotdomain.Store, conn snowflake.ID, day time.Time, metrics map[string]any) {
	t.Helper()
	_, err := store.UpsertMerge(context.Background(), snapshotdomain.Identity{
		WorkspaceID:  testWorkspaceID,
		ConnectionID: conn,
		PeriodType:   period.TypeDaily,
		PeriodStart:  day,
	}, metrics)
	if err != nil {
		t.Fatalf("seed daily snapshot: %v", err)
	}
}

func readMonthly(t *testing.T, store snapshotdomain.Store, conn snowflake.ID, monthStart time.Time) snapshotdomain.Metrics {
	t.Helper()
	got, err := store.Read(context.Background(), snapshotdomain.Identity{
		WorkspaceID:  testWorkspaceID,
		ConnectionID: conn,
		PeriodType:   period.TypeMonthly,
		PeriodStart:  monthStart,
	})
	if err != nil {
		t.Fatalf("read monthly snapshot: %v", err)
	}
	return got
}

func TestRollupSumTreatsNullAsZero(t *testing.T) {
	svc, store := setupRollup(t)
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month.AddDate(0, 0, 0), map[string]any{"views": 10.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 1), map[string]any{"views": 20.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 2), map[string]any{"views": nil})

	if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	got := readMonthly(t, store, conn, month)
	if v := got["views"]; v == nil || *v != 30 {
		t.Fatalf("monthly views = %v, want 30", v)
	}
}

func TestRollupAverageSkipsSilentRecords(t *testing.T) {
	svc, store := setupRollup(t)
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month.AddDate(0, 0, 0), map[string]any{"bounceRate": 40.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 1), map[string]any{"bounceRate": 60.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 2), map[string]any{"bounceRate": nil})
	// A record silent on bounceRate must not pull the average toward zero.
	upsertDaily(t, store, conn, month.AddDate(0, 0, 3), map[string]any{"views": 5.0})

	if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	got := readMonthly(t, store, conn, month)
	if v := got["bounceRate"]; v == nil || *v != 50 {
		t.Fatalf("monthly bounceRate = %v, want 50 (denominator 2, not 3 or 4)", v)
	}
}

func TestRollupDropsUnknownMetrics(t *testing.T) {
	svc, store := setupRollup(t)
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month, map[string]any{
		"views":          10.0,
		"sentimentScore": 0.8,
	})

	if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	got := readMonthly(t, store, conn, month)
	if _, ok := got["sentimentScore"]; ok {
		t.Fatal("unclassified metric must be dropped from the rollup")
	}
	if v := got["views"]; v == nil || *v != 10 {
		t.Fatalf("monthly views = %v, want 10", v)
	}
}

func TestRollupExcludesDataOutsideWindow(t *testing.T) {
	svc, store := setupRollup(t)
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month, map[string]any{"views": 10.0})
	upsertDaily(t, store, conn, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), map[string]any{"views": 99.0})

	if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	got := readMonthly(t, store, conn, month)
	if v := got["views"]; v == nil || *v != 10 {
		t.Fatalf("monthly views = %v, want 10 (April data excluded)", v)
	}
}

func TestRollupIsIdempotent(t *testing.T) {
	svc, store := setupRollup(t)
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month.AddDate(0, 0, 0), map[string]any{"views": 10.0, "bounceRate": 40.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 1), map[string]any{"views": 20.0, "bounceRate": 60.0})

	for i := 0; i < 3; i++ {
		if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
			t.Fatalf("rollup pass %d: %v", i, err)
		}
	}

	got := readMonthly(t, store, conn, month)
	if v := got["views"]; v == nil || *v != 30 {
		t.Fatalf("monthly views = %v, want 30 after repeated rollups", v)
	}
	if v := got["bounceRate"]; v == nil || *v != 50 {
		t.Fatalf("monthly bounceRate = %v, want 50 after repeated rollups", v)
	}
}

func TestRollupPagesThroughFineSnapshots(t *testing.T) {
	svc, store := setupRollup(t)
	svc.cfg.BatchSize = 1
	conn := snowflake.ID(1)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, conn, month.AddDate(0, 0, 0), map[string]any{"views": 10.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 1), map[string]any{"views": 20.0})
	upsertDaily(t, store, conn, month.AddDate(0, 0, 2), map[string]any{"views": 30.0})

	if err := svc.RollupWindow(context.Background(), testWorkspaceID, conn, period.TypeMonthly, month); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	got := readMonthly(t, store, conn, month)
	if v := got["views"]; v == nil || *v != 60 {
		t.Fatalf("monthly views = %v, want 60 across three pages", v)
	}
}

func TestRunRollsUpEachConnectionIndependently(t *testing.T) {
	svc, store := setupRollup(t)
	month := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	upsertDaily(t, store, 1, month, map[string]any{"views": 10.0})
	upsertDaily(t, store, 2, month, map[string]any{"views": 20.0})

	result, err := svc.Run(context.Background(), testWorkspaceID, period.TypeMonthly, month)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if v := readMonthly(t, store, 1, month)["views"]; v == nil || *v != 10 {
		t.Fatalf("connection 1 monthly views = %v, want 10", v)
	}
	if v := readMonthly(t, store, 2, month)["views"]; v == nil || *v != 20 {
		t.Fatalf("connection 2 monthly views = %v, want 20", v)
	}
}
