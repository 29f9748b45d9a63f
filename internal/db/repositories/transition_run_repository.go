package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sector-registry/sectorhub/internal/constants"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"gorm.io/gorm"
)

// TransitionRunRepo handles transition run history
type TransitionRunRepo struct {
	db *gorm.DB
}

// NewTransitionRunRepo creates a new transition run history repository
func NewTransitionRunRepo(db *gorm.DB) *TransitionRunRepo {
	return &TransitionRunRepo{db: db}
}

// RecordRun stores a finished run
func (r *TransitionRunRepo) RecordRun(ctx context.Context, run *gormModels.TransitionRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to record transition run: %w", err)
	}
	return nil
}

// LastRun retrieves the most recently finished run, optionally restricted to one trigger
func (r *TransitionRunRepo) LastRun(ctx context.Context, trigger string) (*gormModels.TransitionRun, error) {
	var run gormModels.TransitionRun

	tx := r.db.WithContext(ctx)
	if trigger != "" {
		tx = tx.Where("trigger_source = ?", trigger)
	}
	err := tx.Order("finished_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch last transition run: %w", err)
	}
	return &run, nil
}

// LastSuccessfulRunFor returns the last successful run for the given day, used to skip repeated runs
func (r *TransitionRunRepo) LastSuccessfulRunFor(ctx context.Context, dayStart time.Time) (*gormModels.TransitionRun, error) {
	var run gormModels.TransitionRun

	err := r.db.WithContext(ctx).
		Where("as_of = ? AND status = ? AND sector_code IS NULL", dayStart.UTC(), constants.TransitionRunSucceeded).
		Order("finished_at DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch transition run for %s: %w", dayStart.Format("2006-01-02"), err)
	}
	return &run, nil
}
