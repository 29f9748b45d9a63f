package jobs

import (
	"context"

	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/config"
)

// InitializeJobs builds and starts the background jobs
func InitializeJobs(ctx context.Context, runner TransitionRunner, cfg config.TransitionConfig, lock common.RunLock) (*SectorTransitionJob, error) {
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{
		CronSpec:   cfg.CronSpec,
		LockTTL:    cfg.LockTTL,
		RunOnStart: cfg.RunOnStart,
		Trigger:    NewCronTrigger(runner.Location()),
		Lock:       lock,
	})

	if err := job.Start(ctx); err != nil {
		return nil, err
	}
	return job, nil
}
