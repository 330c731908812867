package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/askflow/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// checkpointRecord is the row layout of task_checkpoints.
type checkpointRecord struct {
	TaskID    string `gorm:"primaryKey;size:128"`
	LastStep  string `gorm:"size:32;not null"`
	NextStep  string `gorm:"size:32;not null"`
	Payload   string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (checkpointRecord) TableName() string { return "task_checkpoints" }

// SQLStore stores checkpoints in a relational table through GORM. It owns
// the pool and closes it on Close.
type SQLStore struct {
	pool       *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// ErrSchemaMissing means the checkpoint table has not been created on a
// database whose schema is managed by versioned migrations.
var ErrSchemaMissing = errors.New("checkpoint table missing; run `askflow migrate up`")

// NewSQLStore returns a store over pool. sqlite creates the table through
// AutoMigrate; postgres and mysql require the versioned migrations to have
// been applied.
func NewSQLStore(pool *database.PoolManager, logger *zap.Logger) (*SQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool is required")
	}
	db := pool.DB()
	if db.Dialector.Name() == "sqlite" {
		if err := db.AutoMigrate(&checkpointRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
		}
	} else if !db.Migrator().HasTable(&checkpointRecord{}) {
		return nil, ErrSchemaMissing
	}
	return newSQLStore(pool, logger), nil
}

func newSQLStore(pool *database.PoolManager, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		pool:       pool,
		maxRetries: 3,
		logger:     logger.With(zap.String("store", "sql_checkpoint")),
	}
}

// Save implements Store with an upsert on task_id.
func (s *SQLStore) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.TaskID == "" {
		return ErrInvalidTaskID
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	rec := checkpointRecord{
		TaskID:   cp.TaskID,
		LastStep: string(cp.LastStep),
		NextStep: string(cp.NextStep),
		Payload:  string(data),
	}

	return s.pool.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_step", "next_step", "payload", "updated_at"}),
		}).Create(&rec).Error
	})
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, taskID string) (*Checkpoint, error) {
	var rec checkpointRecord
	err := s.pool.DB().WithContext(ctx).Where("task_id = ?", taskID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(rec.Payload), &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cp, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, taskID string) error {
	return s.pool.DB().WithContext(ctx).Where("task_id = ?", taskID).Delete(&checkpointRecord{}).Error
}

// Ping checks the underlying database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.pool.Close()
}
