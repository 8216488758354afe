package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const bookLockTTL = 30 * time.Second

// AllocationResult counts what one book pass did.
type AllocationResult struct {
	Allocated int
	Released  int
	Cancelled int
}

func (r AllocationResult) Changed() bool {
	return r.Allocated+r.Released+r.Cancelled > 0
}

// ReservationAllocator hands available copies to waiting reservations and
// takes back allocations that were not picked up in time.
type ReservationAllocator struct {
	Repo       Repository
	Logger     *logrus.Logger
	Clock      Clock
	Locker     Locker
	Dispatcher Dispatcher
}

func NewReservationAllocator(repo Repository, logger *logrus.Logger, locker Locker) *ReservationAllocator {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &ReservationAllocator{Repo: repo, Logger: logger, Clock: SystemClock, Locker: locker}
}

func (a *ReservationAllocator) Run(ctx context.Context, scope Scope) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "ReservationAllocator.Run")
	defer span.End()

	var summary RunSummary
	now := a.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, a.Repo, a.Logger)
	if err != nil {
		return summary, err
	}

	bookIds, err := a.Repo.ListBooksWithOpenReservations(ctx, scope.UserId)
	if err != nil {
		return summary, fmt.Errorf("list reserved books: %w", err)
	}

	for _, bookId := range bookIds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++
		res, err := a.ProcessBook(ctx, bookId, cfg, now)
		if err != nil {
			summary.Failed++
			a.Logger.WithFields(logrus.Fields{
				"field":   "ReservationAllocator",
				"book_id": bookId,
			}).Error("allocation failed: " + err.Error())
			continue
		}
		if res.Changed() {
			summary.Updated++
		}
	}

	span.SetAttributes(attribute.Int("processed", summary.Processed), attribute.Int("updated", summary.Updated))
	a.Logger.WithFields(logrus.Fields{
		"field":              "ReservationAllocator",
		"triggered_by_login": scope.TriggeredByLogin,
		"processed":          summary.Processed,
		"updated":            summary.Updated,
		"failed":             summary.Failed,
	}).Info("reservation allocation finished")
	return summary, nil
}

// ProcessBook runs one allocation pass for a book under the per-book lock.
func (a *ReservationAllocator) ProcessBook(ctx context.Context, bookId int, cfg RuleConfig, now time.Time) (AllocationResult, error) {
	release, err := a.Locker.Obtain(ctx, bookLockKey(bookId), bookLockTTL)
	if err != nil {
		return AllocationResult{}, err
	}
	defer release()

	var res AllocationResult
	err = a.Repo.RunInTx(ctx, func(repo Repository) error {
		var err error
		res, err = a.allocate(ctx, repo, cfg, bookId, now)
		return err
	})
	return res, err
}

// allocate expires stale allocations first so their copies go to the next in line.
func (a *ReservationAllocator) allocate(ctx context.Context, repo Repository, cfg RuleConfig, bookId int, now time.Time) (AllocationResult, error) {
	var res AllocationResult
	book, err := repo.LockBook(ctx, bookId)
	if err != nil {
		return res, err
	}
	bookBefore := *book
	pickupWindow := utils.Days(cfg.AllocationDueDays)

	allocated, err := repo.ListReservations(ctx, ReservationFilter{
		BookId:   &bookId,
		Statuses: []models.ReservationStatus{models.ReservationStatusAllocated},
	})
	if err != nil {
		return res, err
	}
	for i := range allocated {
		r := &allocated[i]
		if r.AllocatedAt == nil || !now.After(r.AllocatedAt.Add(pickupWindow)) {
			continue
		}
		before := *r
		book.AvailableCopies++
		r.TransferAllocationCount++
		r.AllocatedAt = nil

		var note Notification
		if r.TransferAllocationCount >= cfg.MaxTransferAllocationCount {
			r.Status = models.ReservationStatusCancelled
			r.CancelDate = utils.NewTime(now)
			r.CancelReason = models.CancelReasonAllocationTransferLimitReached
			res.Cancelled++
			user, err := repo.GetUser(ctx, r.UserId)
			if err != nil {
				return res, err
			}
			note = ReservationCancelledNotification{
				To:            recipientOf(user),
				ReservationId: r.ID,
				BookTitle:     book.Title,
				Reason:        r.CancelReason,
			}
		} else {
			r.Status = models.ReservationStatusReserved
			r.AllocateAfter = now.Add(pickupWindow)
			res.Released++
		}
		if err := repo.UpdateReservation(ctx, r); err != nil {
			return res, err
		}
		if err := recordAudit(ctx, repo, "Reservation", r.ID, before, r, "allocation expired"); err != nil {
			return res, err
		}
		if note != nil {
			if err := a.Dispatcher.Dispatch(ctx, repo, note); err != nil {
				return res, err
			}
		}
	}

	if book.AvailableCopies > 0 {
		pending, err := repo.ListReservations(ctx, ReservationFilter{
			BookId:   &bookId,
			Statuses: []models.ReservationStatus{models.ReservationStatusReserved},
		})
		if err != nil {
			return res, err
		}
		for i := range pending {
			if book.AvailableCopies <= 0 {
				break
			}
			r := &pending[i]
			if r.AllocateAfter.After(now) {
				continue
			}
			before := *r
			book.AvailableCopies--
			r.Status = models.ReservationStatusAllocated
			r.AllocatedAt = utils.NewTime(now)
			if err := repo.UpdateReservation(ctx, r); err != nil {
				return res, err
			}
			if err := recordAudit(ctx, repo, "Reservation", r.ID, before, r, "copy allocated"); err != nil {
				return res, err
			}
			user, err := repo.GetUser(ctx, r.UserId)
			if err != nil {
				return res, err
			}
			if err := a.Dispatcher.Dispatch(ctx, repo, ReservationAllocatedNotification{
				To:            recipientOf(user),
				ReservationId: r.ID,
				BookTitle:     book.Title,
				PickupBy:      now.Add(pickupWindow),
			}); err != nil {
				return res, err
			}
			res.Allocated++
		}
	}

	if book.AvailableCopies != bookBefore.AvailableCopies {
		if err := repo.UpdateBook(ctx, book); err != nil {
			return res, err
		}
		if err := recordAudit(ctx, repo, "Book", book.ID, bookBefore, book, "available copies adjusted by allocation"); err != nil {
			return res, err
		}
	}
	return res, nil
}
