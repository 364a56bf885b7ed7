package types

import (
	"time"

	"gorm.io/datatypes"
)

// PersistedState is the single blob written after every store mutation and
// loaded once at startup. Field names match the client-era storage format.
type PersistedState struct {
	Workspaces        []Workspace `json:"workspaces"`
	ActiveWorkspaceID string      `json:"activeWorkspaceId"`
}

// WorkspaceState is the one-row table holding the serialized PersistedState.
type WorkspaceState struct {
	Name      string         `gorm:"primaryKey" json:"name"`
	Payload   datatypes.JSON `gorm:"column:payload" json:"payload"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (WorkspaceState) TableName() string { return "workspace_state" }
