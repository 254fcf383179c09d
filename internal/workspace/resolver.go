// Package workspace resolves tenant settings needed on the ingestion hot
// path.
package workspace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/cache"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace/domain"
	"gorm.io/gorm"
)

const locationTTL = 5 * time.Minute

// Resolver looks up workspace timezones, caching resolved locations so
// every snapshot upsert does not hit the workspaces table.
type Resolver struct {
	db        *gorm.DB
	locations *cache.TTLCache[snowflake.ID, *time.Location]
}

// NewResolver constructs a Resolver on the shared connection.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:        db,
		locations: cache.NewTTLCache[snowflake.ID, *time.Location](),
	}
}

// Location returns the workspace's configured timezone location.
func (r *Resolver) Location(ctx context.Context, workspaceID snowflake.ID) (*time.Location, error) {
	if workspaceID == 0 {
		return nil, domain.ErrWorkspaceNotFound
	}
	if loc, ok := r.locations.Get(workspaceID); ok {
		return loc, nil
	}

	var ws domain.Workspace
	err := r.db.WithContext(ctx).First(&ws, "id = ?", workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(ws.Timezone)
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, domain.ErrInvalidTimezone
	}

	r.locations.Set(workspaceID, loc, locationTTL)
	return loc, nil
}

// Invalidate drops the cached location for a workspace after its settings
// change.
func (r *Resolver) Invalidate(workspaceID snowflake.ID) {
	r.locations.Delete(workspaceID)
}
