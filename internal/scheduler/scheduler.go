package scheduler

import (
	"context"
	"fmt"
	"time"

	"FinBars/internal/domain/models"
	"FinBars/internal/usecase"
	xlogger "FinBars/pkg/logger"
	xutil "FinBars/pkg/util"

	"github.com/robfig/cron/v3"
)

// Runner is the pipeline entry point the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context, symbols []string, tmpl usecase.RunParams) []models.RunSummary
}

// Job is one scheduled batch: every symbol over the trailing lookback.
type Job struct {
	Symbols     []string
	Template    usecase.RunParams
	Lookback    time.Duration
	BaseMinutes int
	Timeout     time.Duration
}

// Scheduler runs pipeline batches on a cron schedule (seconds field
// included). A tick that fires while the previous batch is running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	job    Job
	log    *xlogger.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(runner Runner, job Job, log *xlogger.Logger) *Scheduler {
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		job:    job,
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds the pipeline batch under spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runBatch); err != nil {
		return fmt.Errorf("register pipeline schedule %q: %w", spec, err)
	}
	s.log.Info("pipeline schedule registered",
		xlogger.String("schedule", spec),
		xlogger.Strings("symbols", s.job.Symbols),
	)
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops scheduling and waits for a running batch up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		s.log.Warn("scheduler stop timed out, batch cancelled")
	}
	s.cancel()
	s.log.Info("scheduler stopped")
}

// RunNow executes one batch immediately (run on start, manual trigger).
func (s *Scheduler) RunNow() []models.RunSummary {
	return s.run()
}

func (s *Scheduler) runBatch() { _ = s.run() }

func (s *Scheduler) run() []models.RunSummary {
	ctx := s.ctx
	if s.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.job.Timeout)
		defer cancel()
	}
	tmpl := s.job.Template
	tmpl.From, tmpl.To = xutil.TrailingWindow(s.now(), s.job.Lookback, s.job.BaseMinutes)

	s.log.Info("running scheduled pipeline",
		xlogger.Time("from", tmpl.From),
		xlogger.Time("to", tmpl.To),
		xlogger.Int("symbols", len(s.job.Symbols)),
	)
	return s.runner.RunAll(ctx, s.job.Symbols, tmpl)
}

// cronLogger routes cron's own logging through the app logger.
type cronLogger struct {
	log *xlogger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), xlogger.Error(err))...)
}

func kvFields(kv []interface{}) []xlogger.Field {
	fields := make([]xlogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, xlogger.Any(key, kv[i+1]))
	}
	return fields
}
