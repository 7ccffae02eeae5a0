package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fableloom/chronicler/internal/database"
	"github.com/fableloom/chronicler/types"
)

// MemoryRecord is the persisted row shape of one memory item. The
// schema lives in internal/migration (memory_records); slice and
// payload fields are stored as JSON text so the row stays portable
// across the sqlite/postgres/mysql dialects.
type MemoryRecord struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	MemoryID           string    `gorm:"column:memory_id;uniqueIndex:idx_memory_records_agent_memory"`
	AgentID            string    `gorm:"column:agent_id;uniqueIndex:idx_memory_records_agent_memory;index:idx_memory_records_agent_tier"`
	Tier               string    `gorm:"column:tier;index:idx_memory_records_agent_tier"`
	Content            string    `gorm:"column:content"`
	EmotionalIntensity float64   `gorm:"column:emotional_intensity"`
	RelevanceScore     float64   `gorm:"column:relevance_score"`
	AccessCount        int       `gorm:"column:access_count"`
	CreatedTurn        int       `gorm:"column:created_turn"`
	LastAccessedTurn   int       `gorm:"column:last_accessed_turn"`
	ContextTags        string    `gorm:"column:context_tags"`
	AssociatedAgents   string    `gorm:"column:associated_agents"`
	Payload            string    `gorm:"column:payload"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

// TableName pins the migration-managed table.
func (MemoryRecord) TableName() string { return "memory_records" }

// SnapshotStore persists full per-agent memory snapshots. A snapshot
// replaces the agent's previous rows wholesale; partial writes never
// survive, the swap happens in one transaction.
type SnapshotStore struct {
	pm     *database.PoolManager
	logger *zap.Logger
}

// NewSnapshotStore creates a snapshot store over a managed pool.
func NewSnapshotStore(pm *database.PoolManager, logger *zap.Logger) (*SnapshotStore, error) {
	if pm == nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "snapshot store requires a database pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{
		pm:     pm,
		logger: logger.With(zap.String("component", "memory_snapshot")),
	}, nil
}

// SaveSnapshot replaces the agent's persisted memory with the given
// items. Retries on transient transaction failures.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, agentID string, items []types.MemoryItem) error {
	if agentID == "" {
		return types.NewError(types.ErrValidation, "agent id is empty")
	}
	records := make([]MemoryRecord, 0, len(items))
	for _, item := range items {
		rec, err := encodeRecord(item)
		if err != nil {
			s.logger.Warn("skipping unencodable memory",
				zap.String("memory_id", item.MemoryID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	err := s.pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", agentID).Delete(&MemoryRecord{}).Error; err != nil {
			return fmt.Errorf("clearing previous snapshot: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		return tx.CreateInBatches(records, 100).Error
	})
	if err != nil {
		return types.NewError(types.ErrInternalError,
			fmt.Sprintf("saving memory snapshot for %s", agentID)).WithCause(err).WithRetryable(true)
	}
	s.logger.Debug("saved memory snapshot",
		zap.String("agent_id", agentID), zap.Int("items", len(records)))
	return nil
}

// LoadSnapshot returns the agent's persisted memory, ordered by tier
// then memory id. Rows that fail decoding are skipped and logged.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, agentID string) ([]types.MemoryItem, error) {
	if agentID == "" {
		return nil, types.NewError(types.ErrValidation, "agent id is empty")
	}
	var records []MemoryRecord
	err := s.pm.DB().WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("tier, memory_id").
		Find(&records).Error
	if err != nil {
		return nil, types.NewError(types.ErrInternalError,
			fmt.Sprintf("loading memory snapshot for %s", agentID)).WithCause(err).WithRetryable(true)
	}

	items := make([]types.MemoryItem, 0, len(records))
	for _, rec := range records {
		item, err := decodeRecord(rec)
		if err != nil {
			s.logger.Warn("skipping undecodable memory row",
				zap.String("memory_id", rec.MemoryID), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteAgent drops every persisted row for the agent.
func (s *SnapshotStore) DeleteAgent(ctx context.Context, agentID string) error {
	return s.pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("agent_id = ?", agentID).Delete(&MemoryRecord{}).Error
	})
}

// encodeRecord flattens a memory item into its row shape.
func encodeRecord(item types.MemoryItem) (MemoryRecord, error) {
	if err := item.Validate(); err != nil {
		return MemoryRecord{}, err
	}
	rec := MemoryRecord{
		MemoryID:           item.MemoryID,
		AgentID:            item.AgentID,
		Tier:               string(item.Tier),
		Content:            item.Content,
		EmotionalIntensity: item.EmotionalIntensity,
		RelevanceScore:     item.RelevanceScore,
		AccessCount:        item.AccessCount,
		CreatedTurn:        item.CreatedTurn,
		LastAccessedTurn:   item.LastAccessedTurn,
	}
	var err error
	if rec.ContextTags, err = encodeStrings(item.ContextTags); err != nil {
		return MemoryRecord{}, err
	}
	if rec.AssociatedAgents, err = encodeStrings(item.AssociatedAgents); err != nil {
		return MemoryRecord{}, err
	}
	if item.Payload != nil {
		data, err := json.Marshal(item.Payload)
		if err != nil {
			return MemoryRecord{}, fmt.Errorf("encoding payload: %w", err)
		}
		rec.Payload = string(data)
	}
	return rec, nil
}

// decodeRecord rebuilds a memory item, selecting the payload variant
// by the persisted tier discriminator.
func decodeRecord(rec MemoryRecord) (types.MemoryItem, error) {
	tier, err := types.ParseTier(rec.Tier)
	if err != nil {
		return types.MemoryItem{}, err
	}
	item := types.MemoryItem{
		MemoryID:           rec.MemoryID,
		AgentID:            rec.AgentID,
		Tier:               tier,
		Content:            rec.Content,
		EmotionalIntensity: rec.EmotionalIntensity,
		RelevanceScore:     rec.RelevanceScore,
		AccessCount:        rec.AccessCount,
		CreatedTurn:        rec.CreatedTurn,
		LastAccessedTurn:   rec.LastAccessedTurn,
	}
	if item.ContextTags, err = decodeStrings(rec.ContextTags); err != nil {
		return types.MemoryItem{}, err
	}
	if item.AssociatedAgents, err = decodeStrings(rec.AssociatedAgents); err != nil {
		return types.MemoryItem{}, err
	}
	if rec.Payload != "" {
		payload, err := types.DecodePayload(tier, []byte(rec.Payload))
		if err != nil {
			return types.MemoryItem{}, fmt.Errorf("decoding payload: %w", err)
		}
		item.Payload = payload
	}
	if err := item.Validate(); err != nil {
		return types.MemoryItem{}, err
	}
	return item, nil
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStrings(encoded string) ([]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil, err
	}
	return values, nil
}
