package workflow

import (
	"context"
	"fmt"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AssignMembershipInput struct {
	UserId       int             `json:"user_id" binding:"required"`
	MembershipId int             `json:"membership_id" binding:"required"`
	Discount     decimal.Decimal `json:"discount"`
}

// AssignMembership starts a membership period for the user. A user with an
// active period gets the new one queued right after it; only one upcoming
// period is allowed.
func (c *Circulation) AssignMembership(ctx context.Context, in AssignMembershipInput) (*models.UserMembershipMapping, error) {
	now := c.Clock.Now()
	var mapping *models.UserMembershipMapping
	err := c.Repo.RunInTx(ctx, func(repo Repository) error {
		user, err := repo.GetUser(ctx, in.UserId)
		if err != nil {
			return err
		}
		plan, err := repo.GetMembership(ctx, in.MembershipId)
		if err != nil {
			return err
		}
		if plan.DurationDays < 1 {
			return utils.NewBadRequestError("membership %q has no duration", plan.Name)
		}
		discount := in.Discount.Round(2)
		if discount.IsNegative() || discount.GreaterThan(plan.Cost) {
			return utils.NewBadRequestError("discount must be between 0 and %s", plan.Cost.StringFixed(2))
		}

		upcoming, err := repo.GetUpcomingMembership(ctx, in.UserId, now)
		if err != nil {
			return err
		}
		if upcoming != nil {
			return utils.NewBadRequestError("user %d already has a membership starting %s",
				in.UserId, upcoming.EffectiveStartDate.Format(dateLayout))
		}
		active, err := repo.GetActiveMembership(ctx, in.UserId, now)
		if err != nil {
			return err
		}
		start := now
		if active != nil {
			start = active.ExpirationDate
		}

		mapping = &models.UserMembershipMapping{
			UserId:             in.UserId,
			MembershipId:       plan.ID,
			EffectiveStartDate: start,
			ExpirationDate:     start.Add(utils.Days(plan.DurationDays)),
			BorrowLimit:        plan.BorrowLimit,
			ReservationLimit:   plan.ReservationLimit,
			MembershipCost:     plan.Cost,
			Discount:           discount,
			PaidAmount:         plan.Cost.Sub(discount),
			IsActive:           true,
		}
		if err := repo.CreateMembershipMapping(ctx, mapping); err != nil {
			return err
		}
		if err := recordAudit(ctx, repo, "UserMembershipMapping", mapping.ID, nil, mapping,
			fmt.Sprintf("membership %q assigned", plan.Name)); err != nil {
			return err
		}
		return c.Dispatcher.Dispatch(ctx, repo, MembershipChangedNotification{
			To:             recipientOf(user),
			MappingId:      mapping.ID,
			MembershipName: plan.Name,
			StartDate:      mapping.EffectiveStartDate,
			ExpirationDate: mapping.ExpirationDate,
		})
	})
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

// RemindExpiringMemberships notifies users whose membership ends within the
// reminder window. Each mapping is reminded once.
func (c *Circulation) RemindExpiringMemberships(ctx context.Context) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "Circulation.RemindExpiringMemberships")
	defer span.End()

	var summary RunSummary
	now := c.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, c.Repo, c.Logger)
	if err != nil {
		return summary, err
	}
	expiring, err := c.Repo.ListMembershipsExpiringBetween(ctx, now, now.Add(utils.Days(cfg.MembershipExpiryReminderDays)))
	if err != nil {
		return summary, fmt.Errorf("list expiring memberships: %w", err)
	}

	for i := range expiring {
		m := expiring[i]
		summary.Processed++
		err := c.Repo.RunInTx(ctx, func(repo Repository) error {
			user, err := repo.GetUser(ctx, m.UserId)
			if err != nil {
				return err
			}
			name := ""
			if plan, err := repo.GetMembership(ctx, m.MembershipId); err == nil {
				name = plan.Name
			} else if !utils.IsNotFound(err) {
				return err
			}
			m.ExpiryReminderSentAt = utils.NewTime(now)
			if err := repo.UpdateMembershipMapping(ctx, &m); err != nil {
				return err
			}
			return c.Dispatcher.Dispatch(ctx, repo, MembershipExpiringNotification{
				To:             recipientOf(user),
				MappingId:      m.ID,
				MembershipName: name,
				ExpirationDate: m.ExpirationDate,
			})
		})
		if err != nil {
			summary.Failed++
			c.Logger.WithFields(logrus.Fields{
				"field":      "Circulation",
				"mapping_id": m.ID,
				"user_id":    m.UserId,
			}).Error("membership reminder failed: " + err.Error())
			continue
		}
		summary.Updated++
	}

	c.Logger.WithFields(logrus.Fields{
		"field":     "Circulation",
		"processed": summary.Processed,
		"updated":   summary.Updated,
		"failed":    summary.Failed,
	}).Info("membership reminders finished")
	return summary, nil
}
