package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/sirupsen/logrus"
)

// Circulation holds the interactive operations: borrowing, returning,
// reservations, penalty administration and memberships.
type Circulation struct {
	Repo       Repository
	Logger     *logrus.Logger
	Clock      Clock
	Accrual    *PenaltyAccrual
	Allocator  *ReservationAllocator
	Dispatcher Dispatcher
}

func bookLockKey(bookId int) string {
	return fmt.Sprintf("book:%d", bookId)
}

// withBookLock serializes changes to a book's copy counters across instances.
func (c *Circulation) withBookLock(ctx context.Context, bookId int, fn func() error) error {
	release, err := c.Allocator.Locker.Obtain(ctx, bookLockKey(bookId), bookLockTTL)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// checkOwner hides other members' rows from a non-staff caller.
func checkOwner(ctx context.Context, ownerId int, entity string, id int) error {
	callerId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || utils.IsStaffContext(ctx) || callerId == ownerId {
		return nil
	}
	return utils.NewNotFoundError("%s %d not found", entity, id)
}

// reallocate offers freed copies to waiting reservations after the caller's
// change has committed. Failures are left for the next scheduled run.
func (c *Circulation) reallocate(ctx context.Context, bookId int, cfg RuleConfig, now time.Time) {
	if _, err := c.Allocator.ProcessBook(ctx, bookId, cfg, now); err != nil {
		c.Logger.WithFields(logrus.Fields{
			"field":   "Circulation",
			"book_id": bookId,
		}).Warn("allocation after release failed: " + err.Error())
	}
}

func (c *Circulation) Borrow(ctx context.Context, userId, bookId int) (*models.Transaction, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = c.withBookLock(ctx, bookId, func() error {
		return c.Repo.RunInTx(ctx, func(repo Repository) error {
			// serializes this user's borrows so the limit check below holds
			user, err := repo.LockUser(ctx, userId)
			if err != nil {
				return err
			}
			membership, err := repo.GetActiveMembership(ctx, userId, now)
			if err != nil {
				return err
			}
			if membership == nil {
				return utils.NewBadRequestError("user %d has no active membership", userId)
			}
			counts, err := repo.CountOpenTransactions(ctx, &userId)
			if err != nil {
				return err
			}
			if counts[userId] >= membership.BorrowLimit {
				return utils.NewBadRequestError("borrow limit of %d reached", membership.BorrowLimit)
			}
			unpaid, err := repo.CountUnpaidPenalties(ctx, userId)
			if err != nil {
				return err
			}
			if unpaid > 0 {
				return utils.NewBadRequestError("user %d has %d unpaid penalties", userId, unpaid)
			}

			book, err := repo.LockBook(ctx, bookId)
			if err != nil {
				return err
			}
			mine, err := repo.ListReservations(ctx, ReservationFilter{
				BookId:   &bookId,
				UserId:   &userId,
				Statuses: models.OpenReservationStatuses(),
			})
			if err != nil {
				return err
			}

			// an allocated copy is already set aside for this user
			usedAllocation := false
			for i := range mine {
				if mine[i].Status == models.ReservationStatusAllocated {
					usedAllocation = true
					break
				}
			}
			if !usedAllocation {
				if book.AvailableCopies <= 0 {
					return utils.NewBadRequestError("no copies of %q are available", book.Title)
				}
				bookBefore := *book
				book.AvailableCopies--
				if err := repo.UpdateBook(ctx, book); err != nil {
					return err
				}
				if err := recordAudit(ctx, repo, "Book", book.ID, bookBefore, book, "copy borrowed"); err != nil {
					return err
				}
			}
			for i := range mine {
				r := &mine[i]
				before := *r
				r.Status = models.ReservationStatusFulfilled
				if err := repo.UpdateReservation(ctx, r); err != nil {
					return err
				}
				if err := recordAudit(ctx, repo, "Reservation", r.ID, before, r, "fulfilled by borrow"); err != nil {
					return err
				}
			}

			txn = &models.Transaction{
				UserId:     userId,
				BookId:     bookId,
				Status:     models.TransactionStatusBorrowed,
				BorrowDate: now,
				DueDate:    now.Add(utils.Days(cfg.BorrowDueDays)),
				IsActive:   true,
			}
			if err := repo.CreateTransaction(ctx, txn); err != nil {
				return err
			}
			if err := recordAudit(ctx, repo, "Transaction", txn.ID, nil, txn, "book borrowed"); err != nil {
				return err
			}
			return c.Dispatcher.Dispatch(ctx, repo, CheckoutNotification{
				To:            recipientOf(user),
				TransactionId: txn.ID,
				BookTitle:     book.Title,
				DueDate:       txn.DueDate,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Return settles the late fee up to now, puts the copy back and offers it to
// the reservation queue.
func (c *Circulation) Return(ctx context.Context, transactionId int) (*models.Transaction, error) {
	return c.close(ctx, transactionId, models.TransactionStatusReturned)
}

// ClaimLost closes a loan whose copy will not come back; the copy leaves the catalog.
func (c *Circulation) ClaimLost(ctx context.Context, transactionId int) (*models.Transaction, error) {
	return c.close(ctx, transactionId, models.TransactionStatusClaimedLost)
}

func (c *Circulation) close(ctx context.Context, transactionId int, status models.TransactionStatus) (*models.Transaction, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}
	current, err := c.Repo.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, current.UserId, "transaction", transactionId); err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = c.withBookLock(ctx, current.BookId, func() error {
		return c.Repo.RunInTx(ctx, func(repo Repository) error {
			var err error
			txn, err = repo.GetTransaction(ctx, transactionId)
			if err != nil {
				return err
			}
			if txn.Status.IsFinalized() {
				return utils.NewBadRequestError("transaction %d is already %s", txn.ID, txn.Status)
			}
			// the closing notice replaces the overdue notice
			if _, err := c.Accrual.accrue(ctx, repo, cfg, txn, now, false); err != nil {
				return err
			}

			before := *txn
			txn.Status = status
			if status == models.TransactionStatusReturned {
				txn.ReturnDate = utils.NewTime(now)
			} else {
				txn.LostClaimDate = utils.NewTime(now)
			}
			if err := repo.UpdateTransaction(ctx, txn); err != nil {
				return err
			}
			if err := recordAudit(ctx, repo, "Transaction", txn.ID, before, txn, "transaction "+string(status)); err != nil {
				return err
			}

			book, err := repo.LockBook(ctx, txn.BookId)
			if err != nil && !utils.IsNotFound(err) {
				return err
			}
			if book != nil {
				bookBefore := *book
				if status == models.TransactionStatusReturned {
					book.AvailableCopies++
				} else if book.TotalCopies > 0 {
					book.TotalCopies--
				}
				if err := repo.UpdateBook(ctx, book); err != nil {
					return err
				}
				if err := recordAudit(ctx, repo, "Book", book.ID, bookBefore, book, "transaction "+string(status)); err != nil {
					return err
				}
			}

			if status != models.TransactionStatusReturned {
				return nil
			}
			to, title, err := recipientAndTitle(ctx, repo, txn.UserId, txn.BookId)
			if err != nil {
				return err
			}
			return c.Dispatcher.Dispatch(ctx, repo, ReturnNotification{
				To:            to,
				TransactionId: txn.ID,
				BookTitle:     title,
				ReturnDate:    now,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if status == models.TransactionStatusReturned {
		c.reallocate(ctx, txn.BookId, cfg, now)
	}
	return txn, nil
}

func (c *Circulation) Renew(ctx context.Context, transactionId int) (*models.Transaction, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = c.Repo.RunInTx(ctx, func(repo Repository) error {
		var err error
		txn, err = repo.GetTransaction(ctx, transactionId)
		if err != nil {
			return err
		}
		if err := checkOwner(ctx, txn.UserId, "transaction", transactionId); err != nil {
			return err
		}
		if txn.Status.IsFinalized() {
			return utils.NewBadRequestError("transaction %d is already %s", txn.ID, txn.Status)
		}
		if txn.Status == models.TransactionStatusOverdue || now.After(txn.DueDate) {
			return utils.NewBadRequestError("overdue transactions cannot be renewed")
		}
		if txn.RenewCount >= cfg.MaxRenewCount {
			return utils.NewBadRequestError("renew limit of %d reached", cfg.MaxRenewCount)
		}
		waiting, err := repo.ListReservations(ctx, ReservationFilter{
			BookId:   &txn.BookId,
			Statuses: []models.ReservationStatus{models.ReservationStatusReserved},
		})
		if err != nil {
			return err
		}
		for _, r := range waiting {
			if r.UserId != txn.UserId {
				return utils.NewBadRequestError("book is reserved by another member")
			}
		}

		before := *txn
		txn.DueDate = txn.DueDate.Add(utils.Days(cfg.RenewDays))
		txn.RenewCount++
		txn.RenewDate = utils.NewTime(now)
		txn.Status = models.TransactionStatusRenewed
		if err := repo.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := recordAudit(ctx, repo, "Transaction", txn.ID, before, txn, "transaction renewed"); err != nil {
			return err
		}
		to, title, err := recipientAndTitle(ctx, repo, txn.UserId, txn.BookId)
		if err != nil {
			return err
		}
		return c.Dispatcher.Dispatch(ctx, repo, RenewalNotification{
			To:            to,
			TransactionId: txn.ID,
			BookTitle:     title,
			DueDate:       txn.DueDate,
			RenewCount:    txn.RenewCount,
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Cancel voids a loan recorded by mistake. Only a Borrowed transaction
// within a day of borrowing can be cancelled.
func (c *Circulation) Cancel(ctx context.Context, transactionId int) (*models.Transaction, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}
	current, err := c.Repo.GetTransaction(ctx, transactionId)
	if err != nil {
		return nil, err
	}

	var txn *models.Transaction
	err = c.withBookLock(ctx, current.BookId, func() error {
		return c.Repo.RunInTx(ctx, func(repo Repository) error {
			var err error
			txn, err = repo.GetTransaction(ctx, transactionId)
			if err != nil {
				return err
			}
			if txn.Status != models.TransactionStatusBorrowed {
				return utils.NewBadRequestError("only Borrowed transactions can be cancelled, this one is %s", txn.Status)
			}
			if now.Sub(txn.BorrowDate) >= utils.Day {
				return utils.NewBadRequestError("transaction %d is older than a day and cannot be cancelled", txn.ID)
			}
			before := *txn
			txn.Status = models.TransactionStatusCancelled
			if err := repo.UpdateTransaction(ctx, txn); err != nil {
				return err
			}
			if err := recordAudit(ctx, repo, "Transaction", txn.ID, before, txn, "transaction cancelled"); err != nil {
				return err
			}
			book, err := repo.LockBook(ctx, txn.BookId)
			if err != nil {
				return err
			}
			bookBefore := *book
			book.AvailableCopies++
			if err := repo.UpdateBook(ctx, book); err != nil {
				return err
			}
			return recordAudit(ctx, repo, "Book", book.ID, bookBefore, book, "transaction cancelled")
		})
	})
	if err != nil {
		return nil, err
	}
	c.reallocate(ctx, txn.BookId, cfg, now)
	return txn, nil
}

func (c *Circulation) Reserve(ctx context.Context, userId, bookId int) (*models.Reservation, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}

	var r *models.Reservation
	err = c.Repo.RunInTx(ctx, func(repo Repository) error {
		if _, err := repo.GetUser(ctx, userId); err != nil {
			return err
		}
		if _, err := repo.GetBook(ctx, bookId); err != nil {
			return err
		}
		membership, err := repo.GetActiveMembership(ctx, userId, now)
		if err != nil {
			return err
		}
		if membership == nil {
			return utils.NewBadRequestError("user %d has no active membership", userId)
		}
		open, err := repo.ListReservations(ctx, ReservationFilter{
			UserId:   &userId,
			Statuses: models.OpenReservationStatuses(),
		})
		if err != nil {
			return err
		}
		for _, existing := range open {
			if existing.BookId == bookId {
				return utils.NewConflictError("book %d is already reserved by user %d", bookId, userId)
			}
		}
		if len(open) >= membership.ReservationLimit {
			return utils.NewBadRequestError("reservation limit of %d reached", membership.ReservationLimit)
		}

		r = &models.Reservation{
			UserId:          userId,
			BookId:          bookId,
			Status:          models.ReservationStatusReserved,
			ReservationDate: now,
			AllocateAfter:   now,
			IsActive:        true,
		}
		if err := repo.CreateReservation(ctx, r); err != nil {
			return err
		}
		return recordAudit(ctx, repo, "Reservation", r.ID, nil, r, "book reserved")
	})
	if err != nil {
		return nil, err
	}
	c.reallocate(ctx, bookId, cfg, now)
	return r, nil
}

func (c *Circulation) CancelReservation(ctx context.Context, reservationId int, reason string) (*models.Reservation, error) {
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return nil, err
	}
	current, err := c.Repo.GetReservation(ctx, reservationId)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, current.UserId, "reservation", reservationId); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = models.CancelReasonByUser
		if utils.IsStaffContext(ctx) {
			reason = models.CancelReasonByStaff
		}
	}

	var r *models.Reservation
	wasAllocated := false
	err = c.withBookLock(ctx, current.BookId, func() error {
		return c.Repo.RunInTx(ctx, func(repo Repository) error {
			var err error
			r, err = repo.GetReservation(ctx, reservationId)
			if err != nil {
				return err
			}
			if !r.Status.IsOpen() {
				return utils.NewBadRequestError("reservation %d is already %s", r.ID, r.Status)
			}
			wasAllocated = r.Status == models.ReservationStatusAllocated
			before := *r
			r.Status = models.ReservationStatusCancelled
			r.CancelDate = utils.NewTime(now)
			r.CancelReason = reason
			r.AllocatedAt = nil
			if err := repo.UpdateReservation(ctx, r); err != nil {
				return err
			}
			if err := recordAudit(ctx, repo, "Reservation", r.ID, before, r, "reservation cancelled"); err != nil {
				return err
			}

			book, err := repo.LockBook(ctx, r.BookId)
			if err != nil {
				return err
			}
			if wasAllocated {
				bookBefore := *book
				book.AvailableCopies++
				if err := repo.UpdateBook(ctx, book); err != nil {
					return err
				}
				if err := recordAudit(ctx, repo, "Book", book.ID, bookBefore, book, "allocation released"); err != nil {
					return err
				}
			}
			user, err := repo.GetUser(ctx, r.UserId)
			if err != nil {
				return err
			}
			return c.Dispatcher.Dispatch(ctx, repo, ReservationCancelledNotification{
				To:            recipientOf(user),
				ReservationId: r.ID,
				BookTitle:     book.Title,
				Reason:        reason,
			})
		})
	})
	if err != nil {
		return nil, err
	}
	if wasAllocated {
		c.reallocate(ctx, r.BookId, cfg, now)
	}
	return r, nil
}
