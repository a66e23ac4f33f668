package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sayu-ops/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunRepository is the ops_runs ledger.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start records a new running run of kind.
func (r *RunRepository) Start(ctx context.Context, kind, runKey string) (*models.Run, error) {
	run := &models.Run{Kind: kind, RunKey: runKey, Status: models.RunRunning}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	return run, nil
}

// Finish stores the final status, the JSON encoded summary and the error, if any.
func (r *RunRepository) Finish(ctx context.Context, run *models.Run, status string, summary any, runErr error) error {
	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("encode run summary: %w", err)
		}
		s := string(data)
		run.Summary = &s
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	err := r.db.WithContext(ctx).Model(run).Updates(map[string]any{
		"status":      run.Status,
		"finished_at": run.FinishedAt,
		"summary":     run.Summary,
		"error":       run.Error,
	}).Error
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	return nil
}

func (r *RunRepository) List(ctx context.Context, kind string, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}

	var runs []models.Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var run models.Run
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
