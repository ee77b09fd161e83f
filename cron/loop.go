package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pretix/minicron/crontab"
	"github.com/pretix/minicron/prometheus_metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Waits at or below this many seconds are treated as noise: the loop
// sleeps one second and resolves again instead of dispatching.
const minWait = 1

type stepResult int

const (
	stepDispatched stepResult = iota
	stepElapsed
	stepRetry
	stepStopped
)

type Scheduler struct {
	crontab  *crontab.Crontab
	executor Executor
	logger   *logrus.Entry
	clock    Clock
	location *time.Location
	metrics  *prometheus_metrics.PrometheusMetrics
	replace  chan *crontab.Crontab
	tick     uint64
}

type Option func(*Scheduler)

func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithLocation sets the time zone schedules are evaluated in. The default
// is UTC.
func WithLocation(location *time.Location) Option {
	return func(s *Scheduler) {
		s.location = location
	}
}

func WithMetrics(metrics *prometheus_metrics.PrometheusMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// NewScheduler returns a Scheduler for ct. ct must contain at least one
// job.
func NewScheduler(ct *crontab.Crontab, executor Executor, logger *logrus.Entry, opts ...Option) (*Scheduler, error) {
	if ct == nil || len(ct.Jobs) == 0 {
		return nil, crontab.ErrEmpty
	}

	s := &Scheduler{
		crontab:  ct,
		executor: executor,
		logger:   logger.WithField("component", "loop"),
		clock:    RealClock(),
		location: time.UTC,
		replace:  make(chan *crontab.Crontab, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = prometheus_metrics.New()
	}
	s.metrics.CronsJobsGauge.Set(float64(len(ct.Jobs)))

	return s, nil
}

// Replace makes the loop continue with ct from its next resolution on. A
// wait in progress is cut short. Empty crontabs are ignored.
func (s *Scheduler) Replace(ct *crontab.Crontab) {
	if ct == nil || len(ct.Jobs) == 0 {
		return
	}

	for {
		select {
		case s.replace <- ct:
			return
		default:
		}

		// Only the latest pending crontab matters.
		select {
		case <-s.replace:
		default:
		}
	}
}

// Run schedules jobs until ctx is done, in which case it returns nil. An
// error is returned only when no job can ever run again.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("entering main loop")

	for {
		result, err := s.step(ctx, false)
		if err != nil {
			return err
		}
		if result == stepStopped {
			s.logger.WithField("component", "signal").Info("exiting")
			return nil
		}
	}
}

// RunOnce performs a single tick: it waits for the next due jobs, runs
// them and returns.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	s.logger.Info("running a single tick")

	for {
		result, err := s.step(ctx, true)
		if result == stepStopped && err == nil {
			s.logger.WithField("component", "signal").Info("exiting")
		}
		if err != nil || result != stepRetry {
			return err
		}
	}
}

func (s *Scheduler) step(ctx context.Context, once bool) (stepResult, error) {
	now := s.clock.Now().In(s.location)

	due, err := Resolve(s.crontab.Jobs, now, s.logger.WithField("component", "next-exec"))
	if err != nil {
		return stepStopped, err
	}

	wait := due.Wait
	s.logger.Debugf("sleeping for %d second(s)", wait)

	if wait <= minWait {
		s.logger.Debugf("sleep time <= %d second, ignoring", minWait)

		if !once {
			if s.sleep(ctx, minWait*time.Second) == stepStopped {
				return stepStopped, nil
			}
			return stepRetry, nil
		}
		wait = minWait
	}

	if result := s.sleep(ctx, time.Duration(wait)*time.Second); result != stepElapsed {
		return result, nil
	}

	s.dispatch(ctx, due.Jobs)

	if ctx.Err() != nil {
		return stepStopped, nil
	}
	return stepDispatched, nil
}

// sleep returns stepElapsed once d has elapsed, stepStopped if ctx is
// done first and stepRetry if a new crontab was installed meanwhile.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) stepResult {
	select {
	case <-ctx.Done():
		return stepStopped
	case ct := <-s.replace:
		s.logger.Infof("switching to new crontab with %d jobs", len(ct.Jobs))
		s.crontab = ct
		s.metrics.Reset()
		s.metrics.CronsJobsGauge.Set(float64(len(ct.Jobs)))
		return stepRetry
	case <-s.clock.After(d):
		return stepElapsed
	}
}

func (s *Scheduler) dispatch(ctx context.Context, jobs []*crontab.Job) {
	for _, job := range jobs {
		if ctx.Err() != nil {
			s.logger.Info("shutdown requested, not running remaining commands")
			return
		}
		s.runJob(ctx, job)
	}

	s.tick++
	s.metrics.CronsTicksCounter.Inc()
}

func (s *Scheduler) runJob(ctx context.Context, job *crontab.Job) {
	jobLogger := s.logger.WithFields(logrus.Fields{
		"component":    "exec",
		"job.position": job.Position,
		"job.line":     job.Line,
		"job.schedule": job.Schedule,
		"job.command":  job.Command,
		"tick":         s.tick,
		"run":          uuid.NewString(),
	})

	labels := jobPromLabels(job)

	s.metrics.CronsCurrentlyRunningGauge.With(labels).Inc()
	defer s.metrics.CronsCurrentlyRunningGauge.With(labels).Dec()

	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		s.metrics.CronsExecutionTimeHistogram.With(labels).Observe(v)
	}))

	jobLogger.Infof("executing command %s", job.Command)

	started := s.clock.Now().In(s.location)
	_, _, err := s.executor.Execute(ctx, job.Command, jobLogger)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return
	}

	timer.ObserveDuration()
	s.metrics.CronsExecCounter.With(labels).Inc()

	if err == nil {
		jobLogger.Info("job succeeded")
		s.metrics.CronsSuccessCounter.With(labels).Inc()
	} else {
		jobLogger.Warn(err)
		s.metrics.CronsFailCounter.With(labels).Inc()
	}

	if next := job.Expression.Next(started); !next.IsZero() {
		finished := s.clock.Now().In(s.location)
		if finished.After(next) {
			jobLogger.Warnf("job took too long to run: it was due again %v ago", finished.Sub(next))
			s.metrics.CronsDeadlineExceededCounter.With(labels).Inc()
		}
	}
}

func jobPromLabels(job *crontab.Job) prometheus.Labels {
	return prometheus.Labels{
		"position": fmt.Sprintf("%d", job.Position),
		"command":  job.Command,
		"schedule": job.Schedule,
	}
}
