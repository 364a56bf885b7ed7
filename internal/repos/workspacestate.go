package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/deeptutor-backend/internal/logger"
	"github.com/yungbote/deeptutor-backend/internal/types"
)

// StateBlobName matches the storage key of the original client build, so a
// dump of the old persisted blob can be imported as-is.
const StateBlobName = "learnverse-v5-storage"

type WorkspaceStateRepo interface {
	Load(ctx context.Context) (types.PersistedState, bool, error)
	Save(ctx context.Context, state types.PersistedState) error
}

type workspaceStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkspaceStateRepo(db *gorm.DB, baseLog *logger.Logger) WorkspaceStateRepo {
	return &workspaceStateRepo{db: db, log: baseLog.With("repo", "WorkspaceStateRepo")}
}

func (r *workspaceStateRepo) Load(ctx context.Context) (types.PersistedState, bool, error) {
	var row types.WorkspaceState
	err := r.db.WithContext(ctx).
		Where("name = ?", StateBlobName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.PersistedState{}, false, nil
	}
	if err != nil {
		return types.PersistedState{}, false, err
	}

	var state types.PersistedState
	if err := json.Unmarshal(row.Payload, &state); err != nil {
		// A corrupt blob must not brick startup; start empty and overwrite on
		// the next save.
		r.log.Error("Persisted workspace state is corrupt, starting empty", "error", err)
		return types.PersistedState{}, false, nil
	}
	return state, true, nil
}

func (r *workspaceStateRepo) Save(ctx context.Context, state types.PersistedState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	row := types.WorkspaceState{
		Name:      StateBlobName,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}
