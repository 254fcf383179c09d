// Package events provides the pipeline event outbox.
package events

// Pipeline event types written to the outbox.
const (
	EventSnapshotFrozen       = "snapshot.frozen"
	EventRollupCompleted      = "rollup.completed"
	EventReportGenerated      = "report.generated"
	EventReportDeliveryFailed = "report.delivery_failed"
)

// SnapshotFrozenPayload captures the minimal data to audit a freeze.
type SnapshotFrozenPayload struct {
	SnapshotID string `json:"snapshot_id"`
	VersionNo  int    `json:"version_no"`
}

// ReportGeneratedPayload captures the minimal data to audit a report run.
type ReportGeneratedPayload struct {
	ScheduleID  string `json:"schedule_id"`
	ReportID    string `json:"report_id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// ToMap converts a payload into an outbox-friendly map.
func (p SnapshotFrozenPayload) ToMap() map[string]any {
	return map[string]any{
		"snapshot_id": p.SnapshotID,
		"version_no":  p.VersionNo,
	}
}

// ToMap converts a payload into an outbox-friendly map.
func (p ReportGeneratedPayload) ToMap() map[string]any {
	return map[string]any{
		"schedule_id":  p.ScheduleID,
		"report_id":    p.ReportID,
		"period_start": p.PeriodStart,
		"period_end":   p.PeriodEnd,
	}
}
