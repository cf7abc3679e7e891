package schedsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
)

// AutoMarkJob is the name of the daily attendance job.
const AutoMarkJob = "automark"

// Scheduler runs jobs on cron specs evaluated in a fixed timezone.
type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	logger core.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func New(loc *time.Location, logger core.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		loc:    loc,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Register schedules job under name. Jobs receive a context cancelled on Stop.
func (s *Scheduler) Register(name, spec string, job func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return errors.Errorf("job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() {
		s.logger.Info(fmt.Sprintf("running job %s", name))
		job(s.ctx)
	})
	if err != nil {
		return errors.Wrapf(err, "scheduling job %s (%s)", name, spec)
	}
	s.jobs[name] = id
	s.logger.Info(fmt.Sprintf("scheduled job %s (%s, %s)", name, spec, s.loc))
	return nil
}

// RegisterAutoMark schedules the daily attendance job.
func (s *Scheduler) RegisterAutoMark(spec string, marker *attendance.AutoMarker) error {
	return s.Register(AutoMarkJob, spec, func(ctx context.Context) { marker.Run(ctx) })
}

// Next returns the next run of the named job after t.
func (s *Scheduler) Next(name string, after time.Time) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Schedule.Next(after.In(s.loc)), true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done; they are then cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(fmt.Sprintf("cron: %s %v", msg, keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s %v", msg, keysAndValues), err)
}
