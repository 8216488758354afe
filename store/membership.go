package store

import (
	"context"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
)

func (s *Store) GetMembership(ctx context.Context, id int) (*models.Membership, error) {
	return findByID[models.Membership](ctx, s.db, "membership", id)
}

func (s *Store) GetActiveMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	return firstOrNil[models.UserMembershipMapping](s.conn(ctx).
		Where("user_id = ? AND effective_start_date <= ? AND expiration_date > ?", userId, asOf, asOf).
		Order("expiration_date DESC"))
}

func (s *Store) GetLatestMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	return firstOrNil[models.UserMembershipMapping](s.conn(ctx).
		Where("user_id = ? AND effective_start_date <= ?", userId, asOf).
		Order("expiration_date DESC, id DESC"))
}

func (s *Store) GetUpcomingMembership(ctx context.Context, userId int, asOf time.Time) (*models.UserMembershipMapping, error) {
	return firstOrNil[models.UserMembershipMapping](s.conn(ctx).
		Where("user_id = ? AND effective_start_date > ?", userId, asOf).
		Order("effective_start_date ASC"))
}

func (s *Store) CreateMembershipMapping(ctx context.Context, m *models.UserMembershipMapping) error {
	if m.Version == 0 {
		m.Version = 1
	}
	return s.conn(ctx).Create(m).Error
}

func (s *Store) UpdateMembershipMapping(ctx context.Context, m *models.UserMembershipMapping) error {
	return s.saveVersioned(ctx, m, &m.Version)
}

func (s *Store) ListMembershipsExpiringBetween(ctx context.Context, from, to time.Time) ([]models.UserMembershipMapping, error) {
	var out []models.UserMembershipMapping
	err := s.conn(ctx).
		Where("expiration_date > ? AND expiration_date <= ?", from, to).
		Where("expiry_reminder_sent_at IS NULL").
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) GetPenalty(ctx context.Context, id int) (*models.Penalty, error) {
	return findByID[models.Penalty](ctx, s.db, "penalty", id)
}

func (s *Store) GetLatestPenalty(ctx context.Context, q workflow.PenaltyQuery) (*models.Penalty, error) {
	db := s.conn(ctx).Where("user_id = ? AND penalty_type = ?", q.UserId, q.Type)
	if q.TransactionId != nil {
		db = db.Where("transaction_id = ?", *q.TransactionId)
	} else {
		db = db.Where("transaction_id IS NULL")
	}
	if q.UserMembershipMappingId != nil {
		db = db.Where("user_membership_mapping_id = ?", *q.UserMembershipMappingId)
	}
	if q.UnpaidOnly {
		db = db.Where("status = ?", models.PenaltyStatusUnPaid)
	}
	return firstOrNil[models.Penalty](db.Order("id DESC"))
}

func (s *Store) CreatePenalty(ctx context.Context, p *models.Penalty) error {
	if p.Version == 0 {
		p.Version = 1
	}
	return s.conn(ctx).Create(p).Error
}

func (s *Store) UpdatePenalty(ctx context.Context, p *models.Penalty) error {
	return s.saveVersioned(ctx, p, &p.Version)
}

func (s *Store) CountUnpaidPenalties(ctx context.Context, userId int) (int, error) {
	var n int64
	err := s.conn(ctx).Model(&models.Penalty{}).
		Where("user_id = ? AND status = ?", userId, models.PenaltyStatusUnPaid).
		Count(&n).Error
	return int(n), err
}
