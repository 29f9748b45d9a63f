package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/models/dtos"

	"golang.org/x/sync/singleflight"
)

const (
	JobStateStopped   = "stopped"
	JobStateScheduled = "scheduled"

	SectorTransitionJobName = "sector_transition"

	defaultCronSpec = "0 0 * * *"
	defaultLockTTL  = 10 * time.Minute
)

// ErrRunInProgress is returned when another replica holds the run lock for the day
var ErrRunInProgress = errors.New("transition run already in progress")

// TransitionRunner is the engine the job drives, e.g. services.SectorTransitionService
type TransitionRunner interface {
	RunTransitions(ctx context.Context, asOf time.Time, trigger, triggeredBy string) (*dtos.TransitionReport, error)
	SucceededOn(ctx context.Context, day time.Time) (bool, error)
	LastRun(ctx context.Context, trigger string) (*dtos.TransitionRunView, error)
	Today() time.Time
	Location() *time.Location
}

type SectorTransitionJobConfig struct {
	CronSpec   string
	LockTTL    time.Duration
	RunOnStart bool
	Trigger    Trigger
	Lock       common.RunLock
}

// SectorTransitionJob runs the transition engine once a day. Runs for the
// same day are collapsed in-process and serialized across replicas by Lock.
type SectorTransitionJob struct {
	runner     TransitionRunner
	trigger    Trigger
	lock       common.RunLock
	cronSpec   string
	lockTTL    time.Duration
	runOnStart bool

	flight singleflight.Group

	mu     sync.Mutex
	state  string
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSectorTransitionJob(runner TransitionRunner, cfg SectorTransitionJobConfig) *SectorTransitionJob {
	j := &SectorTransitionJob{
		runner:     runner,
		trigger:    cfg.Trigger,
		lock:       cfg.Lock,
		cronSpec:   cfg.CronSpec,
		lockTTL:    cfg.LockTTL,
		runOnStart: cfg.RunOnStart,
		state:      JobStateStopped,
	}
	if j.trigger == nil {
		j.trigger = NewCronTrigger(runner.Location())
	}
	if j.lock == nil {
		j.lock = common.NoopRunLock{}
	}
	if j.cronSpec == "" {
		j.cronSpec = defaultCronSpec
	}
	if j.lockTTL <= 0 {
		j.lockTTL = defaultLockTTL
	}
	return j
}

// Start installs the daily trigger. Calling it on a scheduled job does nothing.
func (j *SectorTransitionJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == JobStateScheduled {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := j.trigger.Schedule(j.cronSpec, func() { j.runScheduled(runCtx) }); err != nil {
		cancel()
		return err
	}
	j.cancel = cancel
	j.state = JobStateScheduled
	logging.Info("[SectorTransitionJob] Scheduled", "cron", j.cronSpec, "timezone", j.runner.Location().String())

	if j.runOnStart {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			j.catchUp(runCtx)
		}()
	}
	return nil
}

// Stop cancels the trigger and waits for a catch-up run to finish
func (j *SectorTransitionJob) Stop() {
	j.mu.Lock()
	if j.state == JobStateStopped {
		j.mu.Unlock()
		return
	}
	j.cancel()
	j.trigger.Cancel()
	j.cancel = nil
	j.state = JobStateStopped
	j.mu.Unlock()

	j.wg.Wait()
	logging.Info("[SectorTransitionJob] Stopped")
}

// State returns stopped or scheduled
func (j *SectorTransitionJob) State() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// RunNow runs the engine for asOf immediately, whatever the schedule state
func (j *SectorTransitionJob) RunNow(ctx context.Context, asOf time.Time, triggeredBy string) (*dtos.TransitionReport, error) {
	return j.run(ctx, asOf, constants.TransitionTriggerManual, triggeredBy)
}

func (j *SectorTransitionJob) run(ctx context.Context, asOf time.Time, trigger, triggeredBy string) (*dtos.TransitionReport, error) {
	day := asOf.In(j.runner.Location()).Format("2006-01-02")

	v, err, shared := j.flight.Do(day, func() (interface{}, error) {
		ok, err := j.lock.Acquire(ctx, day, j.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrRunInProgress, day)
		}
		defer func() {
			if err := j.lock.Release(context.WithoutCancel(ctx), day); err != nil {
				logging.Warn("[SectorTransitionJob] Failed to release run lock", "day", day, "error", err.Error())
			}
		}()
		return j.runner.RunTransitions(ctx, asOf, trigger, triggeredBy)
	})
	if shared {
		logging.Debug("[SectorTransitionJob] Joined in-flight run", "day", day)
	}
	if err != nil {
		return nil, err
	}
	return v.(*dtos.TransitionReport), nil
}

func (j *SectorTransitionJob) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, j.lockTTL)
	defer cancel()

	if _, err := j.run(runCtx, j.runner.Today(), constants.TransitionTriggerScheduled, ""); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			logging.Info("[SectorTransitionJob] Skipped, another replica is running", "error", err.Error())
			return
		}
		logging.Error("[SectorTransitionJob] Scheduled run failed", "error", err.Error())
	}
}

// catchUp runs today's transitions when no full run has succeeded yet, e.g. after downtime over midnight
func (j *SectorTransitionJob) catchUp(ctx context.Context) {
	today := j.runner.Today()
	done, err := j.runner.SucceededOn(ctx, today)
	if err != nil {
		logging.Warn("[SectorTransitionJob] Could not read run history, skipping catch-up", "error", err.Error())
		return
	}
	if done {
		logging.Debug("[SectorTransitionJob] Today's run already succeeded", "day", today.Format("2006-01-02"))
		return
	}
	logging.Info("[SectorTransitionJob] Running missed transitions", "day", today.Format("2006-01-02"))
	j.runScheduled(ctx)
}

// Status reports the schedule and the most recent run
func (j *SectorTransitionJob) Status(ctx context.Context) (*dtos.JobStatus, error) {
	status := &dtos.JobStatus{
		Name:     SectorTransitionJobName,
		State:    j.State(),
		CronSpec: j.cronSpec,
		Timezone: j.runner.Location().String(),
	}
	if status.State == JobStateScheduled {
		status.NextRun = j.trigger.Next()
	}

	last, err := j.runner.LastRun(ctx, "")
	if err != nil {
		return nil, err
	}
	status.LastRun = last
	return status, nil
}
