package workflow

import (
	"context"
	"strings"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
)

// ManualPenaltyInput describes a penalty staff records by hand, such as
// damage or a lost book fee.
type ManualPenaltyInput struct {
	UserId        int                `json:"user_id" binding:"required"`
	TransactionId *int               `json:"transaction_id"`
	PenaltyType   models.PenaltyType `json:"penalty_type" binding:"required"`
	Amount        decimal.Decimal    `json:"amount"`
	Description   string             `json:"description" binding:"required"`
}

func (c *Circulation) PayPenalty(ctx context.Context, penaltyId int) (*models.Penalty, error) {
	return c.settlePenalty(ctx, penaltyId, models.PenaltyStatusPaid, "")
}

func (c *Circulation) WaivePenalty(ctx context.Context, penaltyId int, reason string) (*models.Penalty, error) {
	return c.settlePenalty(ctx, penaltyId, models.PenaltyStatusWaived, reason)
}

func (c *Circulation) settlePenalty(ctx context.Context, penaltyId int, status models.PenaltyStatus, reason string) (*models.Penalty, error) {
	now := c.Clock.Now()
	var p *models.Penalty
	err := c.Repo.RunInTx(ctx, func(repo Repository) error {
		var err error
		p, err = repo.GetPenalty(ctx, penaltyId)
		if err != nil {
			return err
		}
		if err := checkOwner(ctx, p.UserId, "penalty", penaltyId); err != nil {
			return err
		}
		if p.Status != models.PenaltyStatusUnPaid {
			return utils.NewBadRequestError("penalty %d is already %s", p.ID, p.Status)
		}
		before := *p
		p.Status = status
		if status == models.PenaltyStatusPaid {
			p.PaidAt = utils.NewTime(now)
		} else {
			p.WaivedAt = utils.NewTime(now)
			if reason = strings.TrimSpace(reason); reason != "" {
				p.Description += " (waived: " + reason + ")"
			}
		}
		if err := repo.UpdatePenalty(ctx, p); err != nil {
			return err
		}
		return recordAudit(ctx, repo, "Penalty", p.ID, before, p, "penalty "+string(status))
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddManualPenalty records a staff-assessed penalty. Types the engine
// computes itself are rejected.
func (c *Circulation) AddManualPenalty(ctx context.Context, in ManualPenaltyInput) (*models.Penalty, error) {
	if !in.PenaltyType.IsValid() {
		return nil, utils.NewBadRequestError("unknown penalty type %q", in.PenaltyType)
	}
	if in.PenaltyType.IsAutoCalculated() {
		return nil, utils.NewBadRequestError("penalty type %s is calculated automatically", in.PenaltyType)
	}
	amount := in.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, utils.NewBadRequestError("penalty amount must be positive")
	}

	var p *models.Penalty
	err := c.Repo.RunInTx(ctx, func(repo Repository) error {
		user, err := repo.GetUser(ctx, in.UserId)
		if err != nil {
			return err
		}
		if in.TransactionId != nil {
			txn, err := repo.GetTransaction(ctx, *in.TransactionId)
			if err != nil {
				return err
			}
			if txn.UserId != in.UserId {
				return utils.NewBadRequestError("transaction %d does not belong to user %d", txn.ID, in.UserId)
			}
		}
		p = &models.Penalty{
			UserId:        in.UserId,
			TransactionId: in.TransactionId,
			Status:        models.PenaltyStatusUnPaid,
			PenaltyType:   in.PenaltyType,
			Description:   in.Description,
			Amount:        amount,
			IsActive:      true,
		}
		if err := repo.CreatePenalty(ctx, p); err != nil {
			return err
		}
		if err := recordAudit(ctx, repo, "Penalty", p.ID, nil, p, p.Description); err != nil {
			return err
		}
		return c.Dispatcher.Dispatch(ctx, repo, PenaltyNotification{
			To:          recipientOf(user),
			PenaltyId:   p.ID,
			PenaltyType: p.PenaltyType,
			Amount:      p.Amount,
			Description: p.Description,
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
