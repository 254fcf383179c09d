// Package domain contains persistence models for tenants and their
// channel connections.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Workspace is the tenant boundary. Every snapshot, schedule and
// connection belongs to exactly one workspace.
type Workspace struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Timezone  string       `gorm:"type:text;not null;default:'UTC'" json:"timezone"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Workspace) TableName() string { return "workspaces" }

// ChannelConnection is an external data source (social, commerce,
// analytics) inside a workspace.
type ChannelConnection struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"not null;index" json:"workspace_id"`
	Provider    string       `gorm:"type:text;not null" json:"provider"`
	DisplayName string       `gorm:"type:text;not null" json:"display_name"`
	IsActive    bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ChannelConnection) TableName() string { return "channel_connections" }

var (
	ErrWorkspaceNotFound = errors.New("workspace_not_found")
	ErrInvalidTimezone   = errors.New("invalid_timezone")
)
