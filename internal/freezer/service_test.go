package freezer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWorkspaceID = snowflake.ID(4001)

func setupFreezer(t *testing.T, now time.Time) (*Service, *gorm.DB) {
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
		&snapshotdomain.SnapshotVersion{},
		&events.OutboxEvent{},
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

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	svc := NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.Fixed{Instant: now},
		Outbox: events.NewOutbox(db, node),
	})
	return svc, db
}

func seedLiveSnapshot(t *testing.T, db *gorm.DB, id snowflake.ID, metrics map[string]any) snapshotdomain.MetricSnapshot {
	t.Helper()
	snap := snapshotdomain.MetricSnapshot{
		ID:          id,
		WorkspaceID: testWorkspaceID,
		PeriodType:  period.TypeWeekly,
		PeriodStart: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Metrics:     datatypes.JSONMap(metrics),
	}
	if err := db.Create(&snap).Error; err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	return snap
}

func loadVersions(t *testing.T, db *gorm.DB, snapshotID snowflake.ID) []snapshotdomain.SnapshotVersion {
	t.Helper()
	var versions []snapshotdomain.SnapshotVersion
	if err := db.Where("snapshot_id = ?", snapshotID).Order("version_no ASC").Find(&versions).Error; err != nil {
		t.Fatalf("load versions: %v", err)
	}
	return versions
}

func TestFreezeCreatesNumberedVersion(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	snap := seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	result, err := svc.FreezeScope(context.Background(), Scope{WorkspaceID: testWorkspaceID})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if result.Frozen != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	versions := loadVersions(t, db, snap.ID)
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}
	v := versions[0]
	if v.VersionNo != 1 {
		t.Fatalf("version_no = %d, want 1", v.VersionNo)
	}
	if v.Status != snapshotdomain.VersionStatusSnapshot {
		t.Fatalf("status = %s, want SNAPSHOT", v.Status)
	}
	if v.CreatedBy != snapshotdomain.SystemAuthor {
		t.Fatalf("created_by = %s, want system", v.CreatedBy)
	}
}

func TestFreezeIsIdempotentWithinWindow(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	snap := seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	for i := 0; i < 2; i++ {
		if _, err := svc.FreezeScope(context.Background(), Scope{WorkspaceID: testWorkspaceID}); err != nil {
			t.Fatalf("freeze pass %d: %v", i, err)
		}
	}

	versions := loadVersions(t, db, snap.ID)
	if len(versions) != 1 {
		t.Fatalf("expected exactly 1 version after double freeze, got %d", len(versions))
	}
}

func TestFreezeNumbersAreGapFreeAcrossWindows(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	snap := seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	// An earlier freeze outside the current window.
	old := snapshotdomain.SnapshotVersion{
		ID:         9001,
		SnapshotID: snap.ID,
		VersionNo:  1,
		Status:     snapshotdomain.VersionStatusSnapshot,
		Data:       datatypes.JSONMap{"views": 50.0},
		CreatedBy:  snapshotdomain.SystemAuthor,
		CreatedAt:  now.Add(-8 * 24 * time.Hour),
	}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed old version: %v", err)
	}

	if _, err := svc.FreezeScope(context.Background(), Scope{WorkspaceID: testWorkspaceID}); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	versions := loadVersions(t, db, snap.ID)
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[1].VersionNo != 2 {
		t.Fatalf("new version_no = %d, want 2", versions[1].VersionNo)
	}
}

func TestFrozenVersionIsImmutableUnderLiveMutation(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	snap := seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	if _, err := svc.FreezeScope(context.Background(), Scope{WorkspaceID: testWorkspaceID}); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	// Mutate the live record after the freeze.
	if err := db.Model(&snapshotdomain.MetricSnapshot{}).
		Where("id = ?", snap.ID).
		Update("metrics", datatypes.JSONMap{"views": 999.0}).Error; err != nil {
		t.Fatalf("mutate live: %v", err)
	}

	versions := loadVersions(t, db, snap.ID)
	if len(versions) != 1 {
		t.Fatalf("expected 1 version, got %d", len(versions))
	}
	frozen := versions[0].Data["views"]
	value, ok := frozen.(float64)
	if !ok || value != 100 {
		t.Fatalf("frozen views = %v, want 100 despite live mutation", frozen)
	}
}

func TestFreezeScopeFiltersPeriodType(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	weekly := seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	daily := snapshotdomain.MetricSnapshot{
		ID:          2,
		WorkspaceID: testWorkspaceID,
		PeriodType:  period.TypeDaily,
		PeriodStart: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Metrics:     datatypes.JSONMap{"views": 10.0},
	}
	if err := db.Create(&daily).Error; err != nil {
		t.Fatalf("seed daily: %v", err)
	}

	result, err := svc.FreezeScope(context.Background(), Scope{
		WorkspaceID: testWorkspaceID,
		PeriodType:  period.TypeWeekly,
	})
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if result.Frozen != 1 {
		t.Fatalf("expected only the weekly snapshot frozen, got %+v", result)
	}
	if got := loadVersions(t, db, weekly.ID); len(got) != 1 {
		t.Fatalf("weekly snapshot should have 1 version, got %d", len(got))
	}
	if got := loadVersions(t, db, daily.ID); len(got) != 0 {
		t.Fatalf("daily snapshot should have no versions, got %d", len(got))
	}
}

func TestFreezePublishesOutboxEvent(t *testing.T) {
	now := time.Date(2025, 3, 16, 3, 0, 0, 0, time.UTC)
	svc, db := setupFreezer(t, now)
	seedLiveSnapshot(t, db, 1, map[string]any{"views": 100.0})

	if _, err := svc.FreezeScope(context.Background(), Scope{WorkspaceID: testWorkspaceID}); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	var count int64
	if err := db.Model(&events.OutboxEvent{}).
		Where("event_type = ?", events.EventSnapshotFrozen).
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 snapshot.frozen event, got %d", count)
	}
}
