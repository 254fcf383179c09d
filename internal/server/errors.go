package server

import (
	"errors"
	"net/http"

	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	reportdomain "github.com/flowcoder2025/FlowReport-sub001/internal/report/domain"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	workspacedomain "github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"github.com/gin-gonic/gin"
)

var validationErrors = []error{
	period.ErrInvalidType,
	snapshotdomain.ErrInvalidWorkspace,
	snapshotdomain.ErrInvalidPeriodRange,
	snapshotdomain.ErrInvalidMetricValue,
	snapshotdomain.ErrEmptyMetrics,
	scheduledomain.ErrInvalidSchedulePeriod,
	scheduledomain.ErrInvalidDayParam,
	scheduledomain.ErrInvalidHour,
	scheduledomain.ErrInvalidTimezone,
	scheduledomain.ErrInvalidAddress,
	scheduledomain.ErrInvalidChannel,
	workspacedomain.ErrInvalidTimezone,
}

var notFoundErrors = []error{
	snapshotdomain.ErrSnapshotNotFound,
	scheduledomain.ErrScheduleNotFound,
	scheduledomain.ErrRecipientNotFound,
	workspacedomain.ErrWorkspaceNotFound,
	reportdomain.ErrReportNotFound,
}

// AbortWithError maps domain sentinels to HTTP statuses and ends the
// request.
func AbortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case matchesAny(err, validationErrors):
		status = http.StatusBadRequest
	case matchesAny(err, notFoundErrors):
		status = http.StatusNotFound
	case errors.Is(err, scheduledomain.ErrScheduleExists):
		status = http.StatusConflict
	case errors.Is(err, scheduledomain.ErrRecipientLimitExceeded):
		status = http.StatusUnprocessableEntity
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func invalidRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
