package jobs

import (
	"fmt"
	"sync"
	"time"

	"sector-registry/sectorhub/internal/logging"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger fires a function on a recurring schedule
type Trigger interface {
	Schedule(spec string, fn func()) error
	Cancel()
	// Next returns the next fire time, or nil when nothing is scheduled
	Next() *time.Time
}

// CronTrigger schedules with robfig/cron in a fixed timezone
type CronTrigger struct {
	loc  *time.Location
	mu   sync.Mutex
	cron *cron.Cron
}

var _ Trigger = (*CronTrigger)(nil)

func NewCronTrigger(loc *time.Location) *CronTrigger {
	if loc == nil {
		loc = time.UTC
	}
	return &CronTrigger{loc: loc}
}

func (t *CronTrigger) Schedule(spec string, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		return fmt.Errorf("trigger already scheduled")
	}

	c := cron.New(cron.WithLocation(t.loc), cron.WithChain(cron.Recover(cronLogger{logging.Named("cron")})))
	if _, err := c.AddFunc(spec, fn); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	c.Start()
	t.cron = c
	return nil
}

// Cancel stops the schedule and waits for a running fn to return
func (t *CronTrigger) Cancel() {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (t *CronTrigger) Next() *time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron == nil {
		return nil
	}
	entries := t.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return nil
	}
	next := entries[0].Next
	return &next
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
