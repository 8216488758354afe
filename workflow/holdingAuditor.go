package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// HoldingAuditor charges users who hold more books than their membership
// allows, or hold books after their membership expired.
//
// Both penalties are user-level. At most one of each type is outstanding per
// user: an unpaid one is updated in place and moves along with the user to
// their current membership period. Units is the highest book count billed;
// only growth beyond it is charged. Once settled, a new penalty is raised
// only for growth beyond the settled count within the same period.
type HoldingAuditor struct {
	Repo       Repository
	Logger     *logrus.Logger
	Clock      Clock
	Dispatcher Dispatcher
}

func NewHoldingAuditor(repo Repository, logger *logrus.Logger) *HoldingAuditor {
	return &HoldingAuditor{Repo: repo, Logger: logger, Clock: SystemClock}
}

func (h *HoldingAuditor) Run(ctx context.Context, scope Scope) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "HoldingAuditor.Run")
	defer span.End()

	var summary RunSummary
	now := h.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, h.Repo, h.Logger)
	if err != nil {
		return summary, err
	}

	counts, err := h.Repo.CountOpenTransactions(ctx, scope.UserId)
	if err != nil {
		return summary, fmt.Errorf("count open transactions: %w", err)
	}
	userIds := make([]int, 0, len(counts))
	for id := range counts {
		userIds = append(userIds, id)
	}
	sort.Ints(userIds)

	for _, userId := range userIds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		var changed bool
		err := h.Repo.RunInTx(ctx, func(repo Repository) error {
			var err error
			changed, err = h.AuditUser(ctx, repo, cfg, userId, now)
			return err
		})
		if err != nil {
			summary.Failed++
			h.Logger.WithFields(logrus.Fields{
				"field":   "HoldingAuditor",
				"user_id": userId,
			}).Error("holding audit failed: " + err.Error())
			continue
		}
		if changed {
			summary.Updated++
		}
	}

	span.SetAttributes(attribute.Int("processed", summary.Processed), attribute.Int("updated", summary.Updated))
	h.Logger.WithFields(logrus.Fields{
		"field":              "HoldingAuditor",
		"triggered_by_login": scope.TriggeredByLogin,
		"processed":          summary.Processed,
		"updated":            summary.Updated,
		"failed":             summary.Failed,
	}).Info("holding audit finished")
	return summary, nil
}

// AuditUser evaluates both holding rules for one user inside the caller's unit of work.
func (h *HoldingAuditor) AuditUser(ctx context.Context, repo Repository, cfg RuleConfig, userId int, now time.Time) (bool, error) {
	counts, err := repo.CountOpenTransactions(ctx, &userId)
	if err != nil {
		return false, err
	}
	held := counts[userId]
	if held == 0 {
		return false, nil
	}

	active, err := repo.GetActiveMembership(ctx, userId, now)
	if err != nil {
		return false, err
	}
	if active != nil {
		if held <= active.BorrowLimit {
			return false, nil
		}
		// grace period to come back under a new, possibly lower limit
		if now.Sub(active.EffectiveStartDate) <= utils.Days(cfg.CarryOverDays) {
			return false, nil
		}
		return h.charge(ctx, repo, holdingCharge{
			userId:    userId,
			mappingId: active.ID,
			kind:      models.PenaltyTypeExtraHoldings,
			units:     held - active.BorrowLimit,
			rate:      cfg.ExtraHoldingPenaltyPerBook,
			description: fmt.Sprintf("Holding %d book(s) over the borrow limit of %d",
				held-active.BorrowLimit, active.BorrowLimit),
		})
	}

	latest, err := repo.GetLatestMembership(ctx, userId, now)
	if err != nil {
		return false, err
	}
	if latest == nil {
		h.Logger.WithFields(logrus.Fields{
			"field":   "HoldingAuditor",
			"user_id": userId,
			"held":    held,
		}).Warn("user holds books without any membership")
		return false, nil
	}
	if latest.ExpirationDate.After(now) {
		return false, nil
	}
	if now.Sub(latest.ExpirationDate) <= utils.Days(cfg.MembershipExpiryBufferDays) {
		return false, nil
	}
	return h.charge(ctx, repo, holdingCharge{
		userId:      userId,
		mappingId:   latest.ID,
		kind:        models.PenaltyTypeBooksHeldUnderExpiredMembership,
		units:       held,
		rate:        cfg.ExpiredMembershipPenaltyPerBook,
		description: fmt.Sprintf("Holding %d book(s) after membership expired on %s", held, latest.ExpirationDate.Format(dateLayout)),
	})
}

type holdingCharge struct {
	userId      int
	mappingId   int
	kind        models.PenaltyType
	units       int
	rate        decimal.Decimal
	description string
}

func (h *HoldingAuditor) charge(ctx context.Context, repo Repository, c holdingCharge) (bool, error) {
	mappingId := c.mappingId

	// an outstanding penalty follows the user into later periods
	open, err := repo.GetLatestPenalty(ctx, PenaltyQuery{
		UserId:     c.userId,
		Type:       c.kind,
		UnpaidOnly: true,
	})
	if err != nil {
		return false, err
	}
	if open != nil {
		if c.units <= open.Units && sameMapping(open, mappingId) {
			return false, nil
		}
		before := *open
		if c.units > open.Units {
			delta := c.rate.Mul(decimal.NewFromInt(int64(c.units - open.Units))).Round(2)
			open.Amount = open.Amount.Add(delta)
			open.Units = c.units
			open.Description = c.description
		}
		open.UserMembershipMappingId = &mappingId
		if err := repo.UpdatePenalty(ctx, open); err != nil {
			return false, err
		}
		return true, recordAudit(ctx, repo, "Penalty", open.ID, before, open, c.description)
	}

	settled, err := repo.GetLatestPenalty(ctx, PenaltyQuery{
		UserId:                  c.userId,
		Type:                    c.kind,
		UserMembershipMappingId: &mappingId,
	})
	if err != nil {
		return false, err
	}
	charged := 0
	if settled != nil && settled.Status.IsSettled() {
		charged = settled.Units
	}
	if c.units <= charged {
		return false, nil
	}
	delta := c.rate.Mul(decimal.NewFromInt(int64(c.units - charged))).Round(2)
	if !delta.IsPositive() {
		return false, nil
	}

	p := &models.Penalty{
		UserId:                  c.userId,
		UserMembershipMappingId: &mappingId,
		Status:                  models.PenaltyStatusUnPaid,
		PenaltyType:             c.kind,
		Description:             c.description,
		Amount:                  delta,
		Units:                   c.units,
		IsActive:                true,
	}
	if err := repo.CreatePenalty(ctx, p); err != nil {
		return false, err
	}
	if err := recordAudit(ctx, repo, "Penalty", p.ID, nil, p, c.description); err != nil {
		return false, err
	}

	user, err := repo.GetUser(ctx, c.userId)
	if err != nil {
		return false, err
	}
	return true, h.Dispatcher.Dispatch(ctx, repo, PenaltyNotification{
		To:          recipientOf(user),
		PenaltyId:   p.ID,
		PenaltyType: p.PenaltyType,
		Amount:      p.Amount,
		Description: p.Description,
	})
}

func sameMapping(p *models.Penalty, mappingId int) bool {
	return p.UserMembershipMappingId != nil && *p.UserMembershipMappingId == mappingId
}
