package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrBusy is returned by RunOnce and Trigger while a run started here is active.
var ErrBusy = errors.New("scheduler: run in progress")

// Runner is one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (int, error)
}

type Options struct {
	Spec     string
	Location *time.Location
	// StartupDelay schedules one extra run shortly after Start; zero disables it.
	StartupDelay time.Duration
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   Options
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	timer  *time.Timer
	mu     sync.Mutex

	running atomic.Bool
}

func New(runner Runner, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	log := logger.With(zap.String("component", "scheduler"))
	cronLog := cron.PrintfLogger(zap.NewStdLog(log))

	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   c,
		runner: runner,
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := c.AddFunc(opts.Spec, s.runOnce); err != nil {
		cancel()
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.opts.Spec), zap.String("tz", s.opts.Location.String()))

	if s.opts.StartupDelay > 0 {
		s.mu.Lock()
		s.timer = time.AfterFunc(s.opts.StartupDelay, s.runOnce)
		s.mu.Unlock()
	}
}

// RunOnce runs the pipeline synchronously, outside the cron schedule.
func (s *Scheduler) RunOnce() (int, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.wg.Done()
	defer s.running.Store(false)
	return s.runner.Run(s.ctx)
}

// Trigger starts a run in the background and returns immediately.
func (s *Scheduler) Trigger() error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.report("triggered", time.Now(), func() (int, error) { return s.runner.Run(s.ctx) })
	}()
	return nil
}

// begin claims the run slot. wg.Add happens under mu so Shutdown never
// waits on a group that grows after cancel.
func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return context.Canceled
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) runOnce() {
	if s.ctx.Err() != nil {
		return
	}
	s.report("scheduled", time.Now(), s.RunOnce)
}

func (s *Scheduler) report(kind string, start time.Time, run func() (int, error)) {
	n, err := run()
	fields := []zap.Field{zap.String("trigger", kind), zap.Int("processed", n)}
	switch {
	case err == nil:
		s.log.Info("run done", append(fields, zap.Duration("took", time.Since(start)))...)
	case errors.Is(err, ErrBusy):
		s.log.Info("run skipped, previous run still active", fields...)
	case errors.Is(err, context.Canceled):
		s.log.Warn("run cancelled", fields...)
	default:
		s.log.Error("run failed", append(fields, zap.Error(err))...)
	}
}

// Shutdown stops scheduling, cancels the in-flight run and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.cancel()
	s.mu.Unlock()

	stopped := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
