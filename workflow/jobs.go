package workflow

import (
	"context"
	"errors"

	"github.com/DhruviKhanpara/LMS-sub001/mailer"
	"github.com/sirupsen/logrus"
)

const (
	JobPenaltyAccrual        = "penalty-accrual"
	JobHoldingAudit          = "holding-audit"
	JobReservationAllocation = "reservation-allocation"
	JobMembershipReminder    = "membership-reminder"
	JobOutboxProcessor       = "outbox-processor"
)

// Job is one schedulable entry point.
type Job struct {
	Name string
	Run  func(ctx context.Context) (RunSummary, error)
}

// Engine wires every component over one repository.
type Engine struct {
	Repo        Repository
	Logger      *logrus.Logger
	Accrual     *PenaltyAccrual
	Auditor     *HoldingAuditor
	Allocator   *ReservationAllocator
	Circulation *Circulation
	Outbox      *OutboxProcessor
}

func NewEngine(repo Repository, sender mailer.Sender, locker Locker, logger *logrus.Logger) *Engine {
	accrual := NewPenaltyAccrual(repo, logger)
	allocator := NewReservationAllocator(repo, logger, locker)
	return &Engine{
		Repo:      repo,
		Logger:    logger,
		Accrual:   accrual,
		Auditor:   NewHoldingAuditor(repo, logger),
		Allocator: allocator,
		Circulation: &Circulation{
			Repo:      repo,
			Logger:    logger,
			Clock:     SystemClock,
			Accrual:   accrual,
			Allocator: allocator,
		},
		Outbox: NewOutboxProcessor(repo, sender, logger),
	}
}

// SetClock points every component at the same clock.
func (e *Engine) SetClock(c Clock) {
	e.Accrual.Clock = c
	e.Auditor.Clock = c
	e.Allocator.Clock = c
	e.Circulation.Clock = c
	e.Outbox.Clock = c
}

func (e *Engine) Jobs() []Job {
	return []Job{
		{Name: JobPenaltyAccrual, Run: func(ctx context.Context) (RunSummary, error) {
			return e.Accrual.Run(ctx, Scope{})
		}},
		{Name: JobHoldingAudit, Run: func(ctx context.Context) (RunSummary, error) {
			return e.Auditor.Run(ctx, Scope{})
		}},
		{Name: JobReservationAllocation, Run: func(ctx context.Context) (RunSummary, error) {
			return e.Allocator.Run(ctx, Scope{})
		}},
		{Name: JobMembershipReminder, Run: e.Circulation.RemindExpiringMemberships},
		{Name: JobOutboxProcessor, Run: e.Outbox.ProcessOnce},
	}
}

func (e *Engine) Job(name string) (Job, bool) {
	for _, j := range e.Jobs() {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// RefreshUser brings one user's penalties and reservations up to date, as
// the scheduled jobs would. Every step runs even if an earlier one failed.
func (e *Engine) RefreshUser(ctx context.Context, userId int) (RunSummary, error) {
	scope := ForUser(userId)
	var total RunSummary
	var errs []error

	steps := []func(context.Context, Scope) (RunSummary, error){
		e.Accrual.Run,
		e.Auditor.Run,
		e.Allocator.Run,
	}
	for _, step := range steps {
		s, err := step(ctx, scope)
		total.Add(s)
		if err != nil {
			errs = append(errs, err)
		}
	}
	e.Logger.WithFields(logrus.Fields{
		"field":     "Engine",
		"user_id":   userId,
		"processed": total.Processed,
		"updated":   total.Updated,
		"failed":    total.Failed,
	}).Info("user refresh finished")
	return total, errors.Join(errs...)
}
