package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/config"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type scheduledJob struct {
	job      workflow.Job
	interval time.Duration
}

// Scheduler runs each job on its own ticker. A run holds a cross-instance
// lock named after the job, so only one replica works a job at a time.
type Scheduler struct {
	Jobs    []scheduledJob
	Locker  workflow.Locker
	Logger  *logrus.Logger
	Timeout time.Duration
}

func NewScheduler(s config.Settings, engine *workflow.Engine, locker workflow.Locker, logger *logrus.Logger) *Scheduler {
	intervals := map[string]time.Duration{
		workflow.JobPenaltyAccrual:        s.Jobs.PenaltyAccrualInterval,
		workflow.JobHoldingAudit:          s.Jobs.HoldingAuditInterval,
		workflow.JobReservationAllocation: s.Jobs.ReservationAllocationInterval,
		workflow.JobMembershipReminder:    s.Jobs.MembershipReminderInterval,
	}

	sched := &Scheduler{Locker: locker, Logger: logger, Timeout: s.Jobs.Timeout}
	for _, job := range engine.Jobs() {
		interval, ok := intervals[job.Name]
		// the outbox has its own poll loop
		if !ok || interval <= 0 {
			continue
		}
		if !s.JobEnabled(job.Name) {
			logger.WithFields(logrus.Fields{"field": "Scheduler", "job": job.Name}).Info("job disabled")
			continue
		}
		sched.Jobs = append(sched.Jobs, scheduledJob{job: job, interval: interval})
	}
	return sched
}

// Run blocks until ctx is done and every in-flight run has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.Jobs {
		wg.Add(1)
		go func(j scheduledJob) {
			defer wg.Done()
			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runOnce(ctx, j.job)
				}
			}
		}(j)
	}
	wg.Wait()
}

// runOnce reports whether the job actually ran.
func (s *Scheduler) runOnce(ctx context.Context, job workflow.Job) bool {
	log := s.Logger.WithFields(logrus.Fields{"field": "Scheduler", "job": job.Name})

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	release, err := s.Locker.Obtain(ctx, "job:"+job.Name, timeout+time.Minute)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			log.Debug("job is running elsewhere; skipping tick")
		} else {
			log.Warn("job lock failed: " + err.Error())
		}
		return false
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	runCtx, span := tracer.Start(runCtx, "job."+job.Name, trace.WithAttributes(attribute.String("job.name", job.Name)))
	defer span.End()

	started := time.Now()
	summary, err := job.Run(runCtx)
	span.SetAttributes(
		attribute.Int("job.processed", summary.Processed),
		attribute.Int("job.updated", summary.Updated),
		attribute.Int("job.failed", summary.Failed),
	)
	fields := logrus.Fields{
		"processed": summary.Processed,
		"updated":   summary.Updated,
		"failed":    summary.Failed,
		"elapsed":   time.Since(started).String(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithFields(fields).Error("job run failed: " + err.Error())
		return true
	}
	log.WithFields(fields).Info("job run finished")
	return true
}
