package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models/dtos"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

type fakeTrigger struct {
	mu        sync.Mutex
	spec      string
	fn        func()
	cancelled int
}

func (t *fakeTrigger) Schedule(spec string, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if spec == "bad" {
		return errors.New("invalid cron spec")
	}
	t.spec, t.fn = spec, fn
	return nil
}

func (t *fakeTrigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = nil
	t.cancelled++
}

func (t *fakeTrigger) Next() *time.Time {
	next := time.Date(2025, 7, 2, 0, 0, 0, 0, jakarta)
	return &next
}

// Fire simulates the schedule reaching its time
func (t *fakeTrigger) Fire() bool {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type fakeRunner struct {
	mu        sync.Mutex
	today     time.Time
	calls     []string
	succeeded bool
	block     chan struct{}
	err       error
}

func (r *fakeRunner) RunTransitions(ctx context.Context, asOf time.Time, trigger, triggeredBy string) (*dtos.TransitionReport, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, trigger)
	if r.err != nil {
		return nil, r.err
	}
	return &dtos.TransitionReport{AsOf: asOf, Transitions: []dtos.TransitionEntry{}}, nil
}

func (r *fakeRunner) SucceededOn(context.Context, time.Time) (bool, error) {
	return r.succeeded, nil
}

func (r *fakeRunner) LastRun(context.Context, string) (*dtos.TransitionRunView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, nil
	}
	return &dtos.TransitionRunView{Trigger: r.calls[len(r.calls)-1], Status: constants.TransitionRunSucceeded}, nil
}

func (r *fakeRunner) Today() time.Time         { return r.today }
func (r *fakeRunner) Location() *time.Location { return jakarta }

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type denyLock struct{}

func (denyLock) Acquire(context.Context, string, time.Duration) (bool, error) { return false, nil }
func (denyLock) Release(context.Context, string) error                        { return nil }

func newRunner() *fakeRunner {
	return &fakeRunner{today: time.Date(2025, 7, 1, 0, 0, 0, 0, jakarta)}
}

func TestSectorTransitionJob_StartStop(t *testing.T) {
	runner := newRunner()
	trigger := &fakeTrigger{}
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: trigger})
	ctx := context.Background()

	assert.Equal(t, JobStateStopped, job.State())
	require.NoError(t, job.Start(ctx))
	assert.Equal(t, JobStateScheduled, job.State())
	assert.Equal(t, defaultCronSpec, trigger.spec)

	// second start is a no-op
	require.NoError(t, job.Start(ctx))

	require.True(t, trigger.Fire())
	assert.Equal(t, []string{constants.TransitionTriggerScheduled}, runner.calls)

	job.Stop()
	assert.Equal(t, JobStateStopped, job.State())
	assert.Equal(t, 1, trigger.cancelled)
	assert.False(t, trigger.Fire())

	job.Stop()
	assert.Equal(t, 1, trigger.cancelled)
}

func TestSectorTransitionJob_StartRejectsBadSpec(t *testing.T) {
	job := NewSectorTransitionJob(newRunner(), SectorTransitionJobConfig{Trigger: &fakeTrigger{}, CronSpec: "bad"})
	require.Error(t, job.Start(context.Background()))
	assert.Equal(t, JobStateStopped, job.State())
}

func TestSectorTransitionJob_RunNowWhileStopped(t *testing.T) {
	runner := newRunner()
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: &fakeTrigger{}})

	report, err := job.RunNow(context.Background(), runner.today, "ops@example.com")
	require.NoError(t, err)
	assert.True(t, report.AsOf.Equal(runner.today))
	assert.Equal(t, []string{constants.TransitionTriggerManual}, runner.calls)
}

func TestSectorTransitionJob_SingleFlightPerDay(t *testing.T) {
	runner := newRunner()
	runner.block = make(chan struct{})
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: &fakeTrigger{}})
	ctx := context.Background()

	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			_, err := job.RunNow(ctx, runner.today.Add(time.Duration(i)*time.Hour), "ops@example.com")
			assert.NoError(t, err)
		}()
	}
	<-started
	<-started
	time.Sleep(20 * time.Millisecond)
	close(runner.block)
	wg.Wait()

	assert.LessOrEqual(t, runner.callCount(), 2)
	assert.GreaterOrEqual(t, runner.callCount(), 1)
}

func TestSectorTransitionJob_LockHeldElsewhere(t *testing.T) {
	runner := newRunner()
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: &fakeTrigger{}, Lock: denyLock{}})

	_, err := job.RunNow(context.Background(), runner.today, "ops@example.com")
	require.ErrorIs(t, err, ErrRunInProgress)
	assert.Zero(t, runner.callCount())
}

func TestSectorTransitionJob_EngineFailurePropagates(t *testing.T) {
	runner := newRunner()
	runner.err = constants.NewTransitionFailure(errors.New("boom"), "aborted")
	trigger := &fakeTrigger{}
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: trigger})

	_, err := job.RunNow(context.Background(), runner.today, "ops@example.com")
	assert.ErrorIs(t, err, constants.ErrTransitionFailure)

	// a failed scheduled run is logged, the job stays scheduled
	require.NoError(t, job.Start(context.Background()))
	require.True(t, trigger.Fire())
	assert.Equal(t, JobStateScheduled, job.State())
	job.Stop()
}

func TestSectorTransitionJob_CatchUpOnStart(t *testing.T) {
	runner := newRunner()
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: &fakeTrigger{}, RunOnStart: true})
	require.NoError(t, job.Start(context.Background()))
	require.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)
	job.Stop()
	assert.Equal(t, []string{constants.TransitionTriggerScheduled}, runner.calls)

	done := newRunner()
	done.succeeded = true
	job = NewSectorTransitionJob(done, SectorTransitionJobConfig{Trigger: &fakeTrigger{}, RunOnStart: true})
	require.NoError(t, job.Start(context.Background()))
	job.Stop()
	assert.Zero(t, done.callCount())
}

func TestSectorTransitionJob_Status(t *testing.T) {
	runner := newRunner()
	trigger := &fakeTrigger{}
	job := NewSectorTransitionJob(runner, SectorTransitionJobConfig{Trigger: trigger, CronSpec: "0 1 * * *"})
	ctx := context.Background()

	status, err := job.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobStateStopped, status.State)
	assert.Nil(t, status.NextRun)
	assert.Nil(t, status.LastRun)
	assert.Equal(t, "WIB", status.Timezone)

	require.NoError(t, job.Start(ctx))
	require.True(t, trigger.Fire())
	status, err = job.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobStateScheduled, status.State)
	assert.Equal(t, "0 1 * * *", status.CronSpec)
	require.NotNil(t, status.NextRun)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, constants.TransitionTriggerScheduled, status.LastRun.Trigger)
	job.Stop()
}
