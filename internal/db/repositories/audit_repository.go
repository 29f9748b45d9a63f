package repositories

import (
	"context"
	"fmt"

	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"gorm.io/gorm"
)

// AuditRepo writes audit log entries
type AuditRepo struct {
	db *gorm.DB
}

func NewAuditRepo(db *gorm.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Log writes a batch of audit entries
func (r *AuditRepo) Log(ctx context.Context, entries ...gormModels.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// ListByResource returns the audit trail of one resource, newest first
func (r *AuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string) ([]gormModels.AuditLog, error) {
	var entries []gormModels.AuditLog
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audit log: %w", err)
	}
	return entries, nil
}
