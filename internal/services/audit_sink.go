package services

import (
	"context"
	"encoding/json"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/logging"
	gormModels "sector-registry/sectorhub/internal/models/gorm"
)

// AuditSink receives audit entries. Implementations must not fail the caller.
type AuditSink interface {
	Record(ctx context.Context, entries ...gormModels.AuditLog)
}

// AuditWriter persists audit entries, e.g. repositories.AuditRepo
type AuditWriter interface {
	Log(ctx context.Context, entries ...gormModels.AuditLog) error
}

type repoAuditSink struct {
	writer AuditWriter
}

// NewAuditSink logs write failures instead of returning them
func NewAuditSink(w AuditWriter) AuditSink {
	return &repoAuditSink{writer: w}
}

func (s *repoAuditSink) Record(ctx context.Context, entries ...gormModels.AuditLog) {
	if len(entries) == 0 {
		return
	}
	if err := s.writer.Log(ctx, entries...); err != nil {
		logging.Error("Failed to write audit entries", "count", len(entries), "error", err.Error())
	}
}

type noopAuditSink struct{}

func (noopAuditSink) Record(context.Context, ...gormModels.AuditLog) {}

func auditEntry(actor, action, resourceID string, metadata map[string]any) gormModels.AuditLog {
	entry := gormModels.AuditLog{
		Actor:        actor,
		Action:       action,
		ResourceType: constants.AuditResourceSectorMapping,
		ResourceID:   resourceID,
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = string(raw)
		}
	}
	return entry
}
