package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/freezer"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/deliver"
	reportdomain "github.com/flowcoder2025/FlowReport-sub001/internal/report/domain"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/render"
	reportservice "github.com/flowcoder2025/FlowReport-sub001/internal/report/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/rollup"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	scheduleservice "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/service"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	snapshotservice "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testWorkspaceID = snowflake.ID(7001)

var serverNow = time.Date(2025, 3, 17, 0, 5, 0, 0, time.UTC)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&workspacedomain.Workspace{},
		&workspacedomain.ChannelConnection{},
		&snapshotdomain.MetricSnapshot{},
		&snapshotdomain.SnapshotVersion{},
		&scheduledomain.ReportSchedule{},
		&scheduledomain.ReportRecipient{},
		&reportdomain.GeneratedReport{},
		&events.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&workspacedomain.Workspace{
		ID:       testWorkspaceID,
		Name:     "Acme",
		Timezone: "UTC",
	}).Error; err != nil {
		t.Fatalf("create workspace: %v", err)
	}

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fixed := clock.Fixed{Instant: serverNow}
	log := zap.NewNop()
	resolver := workspace.NewResolver(db)
	outbox := events.NewOutbox(db, node)

	store := snapshotservice.NewService(snapshotservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Workspaces: resolver,
	})
	rollupSvc := rollup.NewService(rollup.Params{
		Log: log, Store: store, Workspaces: resolver,
	})
	freezeSvc := freezer.NewService(freezer.Params{
		DB: db, Log: log, GenID: node, Clock: fixed, Outbox: outbox,
	})
	dispatchSvc := reportservice.NewService(reportservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed, Store: store,
		Renderer: render.NewHTMLRenderer(),
		Channels: deliver.NewRegistry(deliver.NewEmailChannel(nil, log)),
		Outbox:   outbox,
		Config:   reportservice.Config{Workers: 1, DeliveryBackoff: time.Millisecond},
	})
	admin := scheduleservice.NewService(scheduleservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fixed,
		Config: scheduleservice.Config{RecipientLimit: 5},
	})

	srv := New(Params{
		Cfg:       config.Default(),
		Log:       log,
		DB:        db,
		Clock:     fixed,
		Snapshots: store,
		Rollup:    rollupSvc,
		Freezer:   freezeSvc,
		FreezeAll: freezer.NewWorker(db, log, freezeSvc),
		Dispatch:  dispatchSvc,
		Admin:     admin,
	})
	return srv.Router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSnapshotUpsertAndQuery(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/snapshots", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"period_start": "2025-03-10",
		"metrics":      map[string]any{"views": 700},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("upsert status = %d, body %s", w.Code, w.Body)
	}

	// Second write with the same identity merges.
	w = doJSON(t, router, http.MethodPost, "/api/snapshots", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"period_start": "2025-03-10",
		"metrics":      map[string]any{"likes": 42},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("merge status = %d, body %s", w.Code, w.Body)
	}

	w = doJSON(t, router, http.MethodGet,
		"/api/snapshots?workspace_id="+testWorkspaceID.String()+
			"&period_type=WEEKLY&from=2025-03-01&to=2025-04-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Data []snapshotdomain.MetricSnapshot `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(resp.Data))
	}
	if len(resp.Data[0].Metrics) != 2 {
		t.Fatalf("expected merged metrics, got %v", resp.Data[0].Metrics)
	}
}

func TestSnapshotUpsertRejectsBadMetric(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/snapshots", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"period_start": "2025-03-10",
		"metrics":      map[string]any{"views": "a lot"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestScheduleLifecycleOverHTTP(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"day_param":    1,
		"hour":         9,
		"timezone":     "Asia/Seoul",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body)
	}
	var schedule scheduledomain.ReportSchedule
	if err := json.Unmarshal(w.Body.Bytes(), &schedule); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// Duplicate period conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"day_param":    2,
		"hour":         8,
		"timezone":     "UTC",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/schedules/"+schedule.ID.String()+"/recipients", map[string]any{
		"channel": "email",
		"address": "ops@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("recipient status = %d, body %s", w.Code, w.Body)
	}

	w = doJSON(t, router, http.MethodGet, "/api/schedules?workspace_id="+testWorkspaceID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
}

func TestScheduleValidationStatus(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/schedules", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"day_param":    9,
		"hour":         9,
		"timezone":     "UTC",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body)
	}
}

func TestTriggerDispatchEmptyBatch(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/jobs/dispatch", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var result reportdomain.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("result = %+v", result)
	}
}

func TestTriggerFreezeSingleWorkspace(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/snapshots", map[string]any{
		"workspace_id": testWorkspaceID.String(),
		"period_type":  "WEEKLY",
		"period_start": "2025-03-10",
		"metrics":      map[string]any{"views": 700},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/jobs/freeze", map[string]any{
		"workspace_id": testWorkspaceID.String(),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("freeze status = %d, body %s", w.Code, w.Body)
	}
	var result freezer.Result
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Frozen != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestHealth(t *testing.T) {
	router := setupRouter(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
