package store

import (
	"context"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/workflow"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateOutboxMessages(ctx context.Context, msgs []*models.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.conn(ctx).Create(&msgs).Error
}

// ClaimOutboxMessages locks due rows with SKIP LOCKED so concurrent workers
// never claim the same message. Claims older than StaleBefore are taken over.
func (s *Store) ClaimOutboxMessages(ctx context.Context, c workflow.OutboxClaim) ([]models.OutboxMessage, error) {
	var claimed []models.OutboxMessage
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("is_processed = ?", false).
			Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", c.Now).
			Where("(locked_at IS NULL OR locked_at <= ?)", c.StaleBefore).
			Order("id ASC").
			Limit(c.Limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]int, 0, len(claimed))
		for i := range claimed {
			now, worker := c.Now, c.WorkerId
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &worker
			ids = append(ids, claimed[i].ID)
		}
		return tx.Model(&models.OutboxMessage{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"locked_at": c.Now,
				"locked_by": c.WorkerId,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) SaveOutboxResult(ctx context.Context, m *models.OutboxMessage) error {
	m.LockedAt = nil
	m.LockedBy = nil
	return s.conn(ctx).Model(&models.OutboxMessage{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"retry_count":     m.RetryCount,
			"is_processed":    m.IsProcessed,
			"status":          m.Status,
			"next_attempt_at": m.NextAttemptAt,
			"processed_at":    m.ProcessedAt,
			"last_error":      m.LastError,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error
}

func (s *Store) RequeueDeadOutboxMessages(ctx context.Context, ids []int) (int64, error) {
	q := s.conn(ctx).Model(&models.OutboxMessage{}).Where("status = ?", models.OutboxStatusDead)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.Updates(map[string]interface{}{
		"status":          models.OutboxStatusPending,
		"is_processed":    false,
		"retry_count":     0,
		"next_attempt_at": nil,
		"processed_at":    nil,
		"locked_at":       nil,
		"locked_by":       nil,
	})
	return res.RowsAffected, res.Error
}

func (s *Store) CountOutboxByStatus(ctx context.Context) (map[models.OutboxStatus]int64, error) {
	var rows []struct {
		Status models.OutboxStatus
		Total  int64
	}
	err := s.conn(ctx).Model(&models.OutboxMessage{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[models.OutboxStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return s.conn(ctx).Create(entry).Error
}
