package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fableloom/chronicler/internal/database"
	"github.com/fableloom/chronicler/types"
)

// TurnRecord is the per-turn accounting row.
type TurnRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	TurnID        string    `gorm:"column:turn_id;uniqueIndex;not null"`
	Turn          int       `gorm:"column:turn;index;not null"`
	Scenario      string    `gorm:"column:scenario;not null;default:''"`
	AgentCount    int       `gorm:"column:agent_count;not null;default:0"`
	DegradedCount int       `gorm:"column:degraded_count;not null;default:0"`
	DurationMs    int64     `gorm:"column:duration_ms;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName maps the model onto the migrated table.
func (TurnRecord) TableName() string { return "turn_records" }

// TurnRecorder persists turn accounting. A re-run turn replaces its
// previous row.
type TurnRecorder struct {
	pm     *database.PoolManager
	logger *zap.Logger
}

// NewTurnRecorder wraps a managed pool.
func NewTurnRecorder(pm *database.PoolManager, logger *zap.Logger) (*TurnRecorder, error) {
	if pm == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "turn recorder requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnRecorder{pm: pm, logger: logger.With(zap.String("component", "turn_recorder"))}, nil
}

// Record writes one turn's accounting, replacing an earlier run of the
// same turn.
func (r *TurnRecorder) Record(ctx context.Context, rec *TurnRecord) error {
	if rec == nil || rec.TurnID == "" {
		return types.NewError(types.ErrValidation, "turn record requires a turn_id")
	}
	return r.pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		if err := tx.Where("turn_id = ?", rec.TurnID).Delete(&TurnRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
}

// Recent returns the latest turns, newest first.
func (r *TurnRecorder) Recent(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []TurnRecord
	err := r.pm.DB().WithContext(ctx).
		Order("turn DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, types.NewError(types.ErrServiceUnavailable, "turn record query failed").WithCause(err)
	}
	return out, nil
}
