package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/DhruviKhanpara/LMS-sub001/workflow")

// PenaltyAccrual charges tiered late fees on overdue transactions.
type PenaltyAccrual struct {
	Repo       Repository
	Logger     *logrus.Logger
	Clock      Clock
	Dispatcher Dispatcher
}

func NewPenaltyAccrual(repo Repository, logger *logrus.Logger) *PenaltyAccrual {
	return &PenaltyAccrual{Repo: repo, Logger: logger, Clock: SystemClock}
}

func (a *PenaltyAccrual) Run(ctx context.Context, scope Scope) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "PenaltyAccrual.Run")
	defer span.End()

	var summary RunSummary
	now := a.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, a.Repo, a.Logger)
	if err != nil {
		return summary, err
	}

	txns, err := a.Repo.ListOverdueTransactions(ctx, now, scope.UserId)
	if err != nil {
		return summary, fmt.Errorf("list overdue transactions: %w", err)
	}

	for i := range txns {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		txnId := txns[i].ID
		summary.Processed++

		var changed bool
		err := a.Repo.RunInTx(ctx, func(repo Repository) error {
			txn, err := repo.GetTransaction(ctx, txnId)
			if err != nil {
				return err
			}
			changed, err = a.AccrueTransaction(ctx, repo, cfg, txn, now)
			return err
		})
		if err != nil {
			summary.Failed++
			a.Logger.WithFields(logrus.Fields{
				"field":          "PenaltyAccrual",
				"transaction_id": txnId,
				"user_id":        txns[i].UserId,
			}).Error("accrue late fee failed: " + err.Error())
			continue
		}
		if changed {
			summary.Updated++
		}
	}

	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("updated", summary.Updated),
		attribute.Int("failed", summary.Failed),
	)
	a.Logger.WithFields(logrus.Fields{
		"field":              "PenaltyAccrual",
		"triggered_by_login": scope.TriggeredByLogin,
		"processed":          summary.Processed,
		"updated":            summary.Updated,
		"failed":             summary.Failed,
	}).Info("penalty accrual finished")
	return summary, nil
}

// AccrueTransaction brings the late fee of one transaction up to asOf inside
// the caller's unit of work. Days already billed are never billed again, so
// calling it twice for the same asOf changes nothing.
func (a *PenaltyAccrual) AccrueTransaction(ctx context.Context, repo Repository, cfg RuleConfig, txn *models.Transaction, asOf time.Time) (bool, error) {
	return a.accrue(ctx, repo, cfg, txn, asOf, true)
}

// accrue skips the overdue notice when notify is false.
func (a *PenaltyAccrual) accrue(ctx context.Context, repo Repository, cfg RuleConfig, txn *models.Transaction, asOf time.Time, notify bool) (bool, error) {
	if !txn.Status.IsOpen() {
		return false, nil
	}
	days := utils.WholeDaysBetween(txn.DueDate, asOf)
	if days < 1 {
		return false, nil
	}

	rate := cfg.LateFeeRate()
	txnId := txn.ID
	latest, err := repo.GetLatestPenalty(ctx, PenaltyQuery{
		UserId:        txn.UserId,
		Type:          models.PenaltyTypeLateReturnRenew,
		TransactionId: &txnId,
	})
	if err != nil {
		return false, err
	}

	changed := false
	outstanding := decimal.Zero
	switch {
	case latest == nil:
		amount := rate.Accrued(days)
		if amount.IsPositive() {
			p := newLateFee(txn, amount, days)
			if err := repo.CreatePenalty(ctx, p); err != nil {
				return false, err
			}
			if err := recordAudit(ctx, repo, "Penalty", p.ID, nil, p, p.Description); err != nil {
				return false, err
			}
			outstanding = p.Amount
			changed = true
		}
	case latest.ChargedDays() >= days:
		if !latest.Status.IsSettled() {
			outstanding = latest.Amount
		}
	case latest.Status == models.PenaltyStatusUnPaid:
		before := *latest
		latest.Amount = latest.Amount.Add(rate.Delta(latest.ChargedDays(), days))
		latest.OverDueDays = utils.NewInt(days)
		latest.Description = lateFeeDescription(days)
		if err := repo.UpdatePenalty(ctx, latest); err != nil {
			return false, err
		}
		if err := recordAudit(ctx, repo, "Penalty", latest.ID, before, latest, latest.Description); err != nil {
			return false, err
		}
		outstanding = latest.Amount
		changed = true
	case latest.Status.IsSettled():
		// bill only the days after the settled count
		delta := rate.Delta(latest.ChargedDays(), days)
		if delta.IsPositive() {
			p := newLateFee(txn, delta, days)
			if err := repo.CreatePenalty(ctx, p); err != nil {
				return false, err
			}
			if err := recordAudit(ctx, repo, "Penalty", p.ID, nil, p, p.Description); err != nil {
				return false, err
			}
			outstanding = p.Amount
			changed = true
		}
	}

	if txn.Status == models.TransactionStatusBorrowed || txn.Status == models.TransactionStatusRenewed {
		before := *txn
		txn.Status = models.TransactionStatusOverdue
		if err := repo.UpdateTransaction(ctx, txn); err != nil {
			return false, err
		}
		if err := recordAudit(ctx, repo, "Transaction", txn.ID, before, txn, "marked overdue"); err != nil {
			return false, err
		}
		changed = true
		if !notify {
			return changed, nil
		}
		to, title, err := recipientAndTitle(ctx, repo, txn.UserId, txn.BookId)
		if err != nil {
			return false, err
		}
		if err := a.Dispatcher.Dispatch(ctx, repo, OverdueNotification{
			To:            to,
			TransactionId: txn.ID,
			BookTitle:     title,
			DueDate:       txn.DueDate,
			Amount:        outstanding,
		}); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func newLateFee(txn *models.Transaction, amount decimal.Decimal, days int) *models.Penalty {
	txnId := txn.ID
	return &models.Penalty{
		UserId:        txn.UserId,
		TransactionId: &txnId,
		Status:        models.PenaltyStatusUnPaid,
		PenaltyType:   models.PenaltyTypeLateReturnRenew,
		Description:   lateFeeDescription(days),
		Amount:        amount,
		OverDueDays:   utils.NewInt(days),
		IsActive:      true,
	}
}

func lateFeeDescription(days int) string {
	if days == 1 {
		return "Late return: 1 day overdue"
	}
	return fmt.Sprintf("Late return: %d days overdue", days)
}

func recipientAndTitle(ctx context.Context, repo Repository, userId, bookId int) (Recipient, string, error) {
	user, err := repo.GetUser(ctx, userId)
	if err != nil {
		return Recipient{}, "", err
	}
	book, err := repo.GetBook(ctx, bookId)
	if utils.IsNotFound(err) {
		// withdrawn from the catalog while on loan
		return recipientOf(user), fmt.Sprintf("Book #%d", bookId), nil
	}
	if err != nil {
		return Recipient{}, "", err
	}
	return recipientOf(user), book.Title, nil
}
