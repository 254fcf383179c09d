// Package service orchestrates report dispatch: due-schedule selection,
// rendering, delivery fan-out and schedule advancement.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/metric"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/logger"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/metrics"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/deliver"
	reportdomain "github.com/flowcoder2025/FlowReport-sub001/internal/report/domain"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/render"
	"github.com/flowcoder2025/FlowReport-sub001/internal/retry"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config bounds dispatch concurrency and per-step deadlines.
type Config struct {
	Workers             int
	RenderTimeout       time.Duration
	DeliveryTimeout     time.Duration
	DeliveryMaxAttempts int
	DeliveryBackoff     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 15 * time.Second
	}
	if c.DeliveryMaxAttempts <= 0 {
		c.DeliveryMaxAttempts = 3
	}
	if c.DeliveryBackoff <= 0 {
		c.DeliveryBackoff = 2 * time.Second
	}
	return c
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Store    snapshotdomain.Store
	Renderer render.Renderer
	Channels deliver.Registry
	Outbox   *events.Outbox
	Metrics  *metrics.PipelineMetrics `optional:"true"`
	Config   Config
}

// Service runs the dispatch batch. Schedules are processed with bounded
// fan-out; steps within one schedule stay sequential so each schedule
// commits its own progress.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	store    snapshotdomain.Store
	renderer render.Renderer
	channels deliver.Registry
	outbox   *events.Outbox
	metrics  *metrics.PipelineMetrics
	cfg      Config
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("report.dispatch"),
		genID:    p.GenID,
		clock:    p.Clock,
		store:    p.Store,
		renderer: p.Renderer,
		channels: p.Channels,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		cfg:      p.Config.withDefaults(),
	}
}

// DispatchDue processes every active schedule whose next_run_at has
// passed. A unit counts as succeeded when its report was generated and
// the schedule advanced; individual recipient failures do not fail the
// unit.
func (s *Service) DispatchDue(ctx context.Context, now time.Time) (reportdomain.Result, error) {
	now = now.UTC()

	var due []scheduledomain.ReportSchedule
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&due).Error
	if err != nil {
		return reportdomain.Result{}, err
	}
	if len(due) == 0 {
		s.log.Info("no schedules due", zap.Time("now", now))
		return reportdomain.Result{}, nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result = reportdomain.Result{Processed: len(due)}
	)
	sem := make(chan struct{}, s.cfg.Workers)

	for _, schedule := range due {
		schedule := schedule
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			delivered, deliveryErrs, unitErr := s.dispatchOne(ctx, schedule, now)

			mu.Lock()
			defer mu.Unlock()
			result.Delivered += delivered
			result.DeliveryFailed += len(deliveryErrs)
			result.Errors = append(result.Errors, deliveryErrs...)
			if unitErr != nil {
				result.Failed++
				result.Errors = append(result.Errors, *unitErr)
				return
			}
			result.Succeeded++
		}()
	}
	wg.Wait()

	sort.Slice(result.Errors, func(i, j int) bool {
		if result.Errors[i].ScheduleID != result.Errors[j].ScheduleID {
			return result.Errors[i].ScheduleID < result.Errors[j].ScheduleID
		}
		return result.Errors[i].RecipientID < result.Errors[j].RecipientID
	})
	s.log.Info("dispatch batch finished",
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("delivered", result.Delivered),
		zap.Int("delivery_failed", result.DeliveryFailed),
	)
	return result, nil
}

func (s *Service) dispatchOne(ctx context.Context, schedule scheduledomain.ReportSchedule, now time.Time) (int, []reportdomain.UnitError, *reportdomain.UnitError) {
	started := time.Now()
	log := s.log.With(
		zap.Int64("schedule_id", schedule.ID.Int64()),
		zap.Int64("workspace_id", schedule.WorkspaceID.Int64()),
		zap.String("period_type", string(schedule.PeriodType)),
	)

	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		log.Warn("schedule has invalid timezone, falling back to UTC", zap.String("timezone", schedule.Timezone))
		loc = time.UTC
	}

	start, end, err := scheduledomain.ReportingPeriod(schedule.PeriodType, now, loc)
	if err != nil {
		return 0, nil, s.failUnit(schedule, reportdomain.StageRender, err, log, started)
	}

	artifact, renderErr := s.renderReport(ctx, schedule, loc, start, end)
	if renderErr != nil {
		// Cadence over retry: a failed render still advances the
		// schedule so the next window fires on time.
		unitErr := s.failUnit(schedule, reportdomain.StageRender,
			fmt.Errorf("%w: %v", reportdomain.ErrRenderFailed, renderErr), log, started)
		if err := s.advanceSchedule(ctx, schedule, loc, now, false); err != nil {
			log.Error("schedule advance failed after render failure", zap.Error(err))
			s.metrics.IncScheduleStateError()
		}
		return 0, nil, unitErr
	}

	report, err := s.persistReport(ctx, schedule, start, end, artifact)
	if err != nil {
		unitErr := s.failUnit(schedule, reportdomain.StagePersist, err, log, started)
		if err := s.advanceSchedule(ctx, schedule, loc, now, false); err != nil {
			log.Error("schedule advance failed after persist failure", zap.Error(err))
			s.metrics.IncScheduleStateError()
		}
		return 0, nil, unitErr
	}
	s.metrics.IncReportGenerated()

	delivered, deliveryErrs := s.deliverAll(ctx, schedule, report, artifact, log)

	if err := s.advanceSchedule(ctx, schedule, loc, now, true); err != nil {
		log.Error("schedule state write failed, firing may repeat", zap.Error(err))
		s.metrics.IncScheduleStateError()
		s.metrics.ObserveDispatch("update_failed", time.Since(started))
		return delivered, deliveryErrs, &reportdomain.UnitError{
			ScheduleID: schedule.ID,
			Stage:      reportdomain.StageSchedule,
			Error:      reportdomain.ErrScheduleUpdateFailed.Error(),
		}
	}

	s.metrics.ObserveDispatch("success", time.Since(started))
	log.Info("report dispatched",
		zap.Int64("report_id", report.ID.Int64()),
		zap.Time("period_start", start),
		zap.Int("delivered", delivered),
		zap.Int("delivery_failed", len(deliveryErrs)),
	)
	return delivered, deliveryErrs, nil
}

func (s *Service) failUnit(schedule scheduledomain.ReportSchedule, stage reportdomain.Stage, err error, log *zap.Logger, started time.Time) *reportdomain.UnitError {
	log.Warn("dispatch unit failed", zap.String("stage", string(stage)), zap.Error(err))
	s.metrics.ObserveDispatch(string(stage)+"_failed", time.Since(started))
	return &reportdomain.UnitError{
		ScheduleID: schedule.ID,
		Stage:      stage,
		Error:      err.Error(),
	}
}

func (s *Service) renderReport(ctx context.Context, schedule scheduledomain.ReportSchedule, loc *time.Location, start, end time.Time) (render.Artifact, error) {
	records, err := s.store.Query(ctx, snapshotdomain.QueryRequest{
		WorkspaceID: schedule.WorkspaceID,
		PeriodType:  schedule.PeriodType,
		From:        start,
		To:          end,
	})
	if err != nil {
		return render.Artifact{}, err
	}

	input, err := s.buildInput(ctx, schedule, loc, start, end, records)
	if err != nil {
		return render.Artifact{}, err
	}

	renderCtx, cancel := context.WithTimeout(ctx, s.cfg.RenderTimeout)
	defer cancel()
	return s.renderer.Render(renderCtx, input)
}

// buildInput aggregates the period's snapshots into totals plus a
// per-connection breakdown. Unknown metric keys stay out of both.
func (s *Service) buildInput(ctx context.Context, schedule scheduledomain.ReportSchedule, loc *time.Location, start, end time.Time, records []snapshotdomain.MetricSnapshot) (render.RenderInput, error) {
	var ws workspacedomain.Workspace
	if err := s.db.WithContext(ctx).First(&ws, "id = ?", schedule.WorkspaceID).Error; err != nil {
		return render.RenderInput{}, err
	}

	connectionNames, err := s.connectionNames(ctx, records)
	if err != nil {
		return render.RenderInput{}, err
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	var sections []render.ConnectionSectionView
	for _, record := range records {
		values := record.MetricValues()

		var rows []render.MetricRowView
		for _, key := range sortedKeys(values) {
			value := values[key]
			agg := metric.Classify(key)
			if agg == metric.AggregationUnknown {
				continue
			}
			var display string
			if value == nil {
				display = "-"
				if agg == metric.AggregationSum {
					// Null volume metrics contribute zero to the total.
					sums[key] += 0
				}
			} else {
				display = render.FormatMetricValue(*value)
				sums[key] += *value
				counts[key]++
			}
			rows = append(rows, render.MetricRowView{
				Name:        key,
				Value:       display,
				Aggregation: string(agg),
			})
		}
		if len(rows) == 0 {
			continue
		}
		sections = append(sections, render.ConnectionSectionView{
			Name: connectionNames[record.ConnectionID],
			Rows: rows,
		})
	}

	var totals []render.MetricRowView
	for _, key := range sortedFloatKeys(sums) {
		agg := metric.Classify(key)
		value := sums[key]
		if agg == metric.AggregationAverage {
			if counts[key] == 0 {
				continue
			}
			value = value / float64(counts[key])
		}
		totals = append(totals, render.MetricRowView{
			Name:        key,
			Value:       render.FormatMetricValue(value),
			Aggregation: string(agg),
		})
	}

	label := periodLabel(schedule.PeriodType)
	return render.RenderInput{
		Workspace: render.WorkspaceView{Name: ws.Name, Timezone: loc.String()},
		Period: render.PeriodView{
			Label: label,
			Start: start.In(loc),
			End:   end.In(loc),
		},
		Totals:      totals,
		Connections: sections,
	}, nil
}

func (s *Service) connectionNames(ctx context.Context, records []snapshotdomain.MetricSnapshot) (map[snowflake.ID]string, error) {
	ids := make([]snowflake.ID, 0, len(records))
	seen := map[snowflake.ID]bool{}
	for _, record := range records {
		if record.ConnectionID == 0 || seen[record.ConnectionID] {
			continue
		}
		seen[record.ConnectionID] = true
		ids = append(ids, record.ConnectionID)
	}

	names := map[snowflake.ID]string{0: "Workspace"}
	if len(ids) == 0 {
		return names, nil
	}

	var connections []workspacedomain.ChannelConnection
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&connections).Error; err != nil {
		return nil, err
	}
	for _, connection := range connections {
		name := connection.DisplayName
		if name == "" {
			name = connection.Provider
		}
		names[connection.ID] = name
	}
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			names[id] = fmt.Sprintf("connection %d", id.Int64())
		}
	}
	return names, nil
}

func (s *Service) persistReport(ctx context.Context, schedule scheduledomain.ReportSchedule, start, end time.Time, artifact render.Artifact) (*reportdomain.GeneratedReport, error) {
	report := &reportdomain.GeneratedReport{
		ID:          s.genID.Generate(),
		WorkspaceID: schedule.WorkspaceID,
		ScheduleID:  schedule.ID,
		PeriodType:  schedule.PeriodType,
		PeriodStart: start.UTC(),
		PeriodEnd:   end.UTC(),
		ContentType: artifact.ContentType,
		Body:        artifact.Body,
		CreatedAt:   s.clock.Now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			WorkspaceID: schedule.WorkspaceID,
			Type:        events.EventReportGenerated,
			Payload: events.ReportGeneratedPayload{
				ScheduleID:  schedule.ID.String(),
				ReportID:    report.ID.String(),
				PeriodStart: report.PeriodStart.Format(time.RFC3339),
				PeriodEnd:   report.PeriodEnd.Format(time.RFC3339),
			}.ToMap(),
			DedupeKey: fmt.Sprintf("report:%s:%s", schedule.ID, report.PeriodStart.Format("2006-01-02")),
		})
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// deliverAll fans out to active recipients. Failures are isolated per
// recipient; each one gets its own retry attempts and its own entry in
// the batch result.
func (s *Service) deliverAll(ctx context.Context, schedule scheduledomain.ReportSchedule, report *reportdomain.GeneratedReport, artifact render.Artifact, log *zap.Logger) (int, []reportdomain.UnitError) {
	var recipients []scheduledomain.ReportRecipient
	err := s.db.WithContext(ctx).
		Where("schedule_id = ? AND is_active = ?", schedule.ID, true).
		Order("created_at ASC").
		Find(&recipients).Error
	if err != nil {
		log.Warn("recipient load failed", zap.Error(err))
		return 0, []reportdomain.UnitError{{
			ScheduleID: schedule.ID,
			Stage:      reportdomain.StageDeliver,
			Error:      err.Error(),
		}}
	}

	msg := deliver.Message{
		WorkspaceID: schedule.WorkspaceID,
		ReportID:    report.ID,
		Subject:     artifact.Subject,
		ContentType: artifact.ContentType,
		Body:        artifact.Body,
		PeriodStart: report.PeriodStart,
		PeriodEnd:   report.PeriodEnd,
	}

	delivered := 0
	var failures []reportdomain.UnitError
	failRecipient := func(recipient scheduledomain.ReportRecipient, cause error) {
		s.recordDeliveryFailure(ctx, schedule, report, recipient, cause)
		failures = append(failures, reportdomain.UnitError{
			ScheduleID:  schedule.ID,
			RecipientID: recipient.ID,
			Stage:       reportdomain.StageDeliver,
			Error:       cause.Error(),
		})
	}
	for _, recipient := range recipients {
		channel, ok := s.channels[recipient.Channel]
		if !ok {
			log.Warn("no channel for recipient",
				zap.String("channel", string(recipient.Channel)),
				zap.String("address", maskAddress(recipient.Channel, recipient.Address)),
			)
			failRecipient(recipient, scheduledomain.ErrInvalidChannel)
			continue
		}

		err := retry.Do(ctx, s.cfg.DeliveryMaxAttempts, s.cfg.DeliveryBackoff, func(ctx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout)
			defer cancel()
			_, err := channel.Deliver(attemptCtx, recipient.Address, msg)
			return err
		})
		if err != nil {
			log.Warn("delivery failed",
				zap.String("channel", string(recipient.Channel)),
				zap.String("address", maskAddress(recipient.Channel, recipient.Address)),
				zap.Error(err),
			)
			failRecipient(recipient, err)
			continue
		}
		s.metrics.IncDeliveryAttempt(string(recipient.Channel), "success")
		delivered++
	}
	return delivered, failures
}

func (s *Service) recordDeliveryFailure(ctx context.Context, schedule scheduledomain.ReportSchedule, report *reportdomain.GeneratedReport, recipient scheduledomain.ReportRecipient, cause error) {
	s.metrics.IncDeliveryAttempt(string(recipient.Channel), "failed")
	err := s.outbox.Publish(ctx, events.Event{
		WorkspaceID: schedule.WorkspaceID,
		Type:        events.EventReportDeliveryFailed,
		Payload: map[string]any{
			"report_id":    report.ID.String(),
			"schedule_id":  schedule.ID.String(),
			"recipient_id": recipient.ID.String(),
			"channel":      string(recipient.Channel),
			"error":        cause.Error(),
		},
	})
	if err != nil {
		s.log.Warn("delivery failure event not recorded", zap.Error(err))
	}
}

// advanceSchedule moves the schedule to its next firing. markRun also
// stamps last_run_at; render failures advance without it so the missed
// run stays visible.
func (s *Service) advanceSchedule(ctx context.Context, schedule scheduledomain.ReportSchedule, loc *time.Location, now time.Time, markRun bool) error {
	nextRun, err := scheduledomain.NextRun(schedule.PeriodType, schedule.DayParam, schedule.Hour, loc, now)
	if err != nil {
		return fmt.Errorf("%w: %v", reportdomain.ErrScheduleUpdateFailed, err)
	}

	updates := map[string]any{
		"next_run_at": nextRun.UTC(),
		"updated_at":  now,
	}
	if markRun {
		updates["last_run_at"] = now
	}
	err = s.db.WithContext(ctx).
		Model(&scheduledomain.ReportSchedule{}).
		Where("id = ?", schedule.ID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("%w: %v", reportdomain.ErrScheduleUpdateFailed, err)
	}
	return nil
}

// ListReports returns the audit trail for a workspace, newest first.
func (s *Service) ListReports(ctx context.Context, workspaceID snowflake.ID, limit int) ([]reportdomain.GeneratedReport, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var reports []reportdomain.GeneratedReport
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func maskAddress(kind scheduledomain.ChannelKind, address string) string {
	if kind == scheduledomain.ChannelWebhook {
		return logger.MaskWebhookURL(address)
	}
	return logger.MaskAddress(address)
}

func periodLabel(periodType period.Type) string {
	switch periodType {
	case period.TypeWeekly:
		return "Weekly"
	case period.TypeMonthly:
		return "Monthly"
	case period.TypeDaily:
		return "Daily"
	default:
		return string(periodType)
	}
}

func sortedKeys(m snapshotdomain.Metrics) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
