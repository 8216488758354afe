package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/mailer"
	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// OutboxProcessor delivers outbox messages by email with retry and backoff.
// Delivery is at-least-once: a crash after sending but before saving the
// result sends the message again once its claim goes stale.
type OutboxProcessor struct {
	Repo      Repository
	Sender    mailer.Sender
	Logger    *logrus.Logger
	Clock     Clock
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewOutboxProcessor(repo Repository, sender mailer.Sender, logger *logrus.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		Repo:      repo,
		Sender:    sender,
		Logger:    logger,
		Clock:     SystemClock,
		WorkerID:  "outbox-" + uuid.NewString(),
		BatchSize: 50,
		Interval:  time.Minute,
		LockTTL:   5 * time.Minute,
	}
}

// Run polls until ctx is done.
func (p *OutboxProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			p.Logger.WithFields(logrus.Fields{
				"field":     "OutboxProcessor",
				"worker_id": p.WorkerID,
			}).Error("outbox poll failed: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// outboxBatch is one email covering one or more messages.
type outboxBatch struct {
	messages []*models.OutboxMessage
	email    mailer.Email
	err      error
}

func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (RunSummary, error) {
	ctx, span := tracer.Start(ctx, "OutboxProcessor.ProcessOnce")
	defer span.End()

	var summary RunSummary
	now := p.Clock.Now()
	cfg, err := LoadRuleConfig(ctx, p.Repo, p.Logger)
	if err != nil {
		return summary, err
	}

	claimed, err := p.Repo.ClaimOutboxMessages(ctx, OutboxClaim{
		Now:         now,
		StaleBefore: now.Add(-p.LockTTL),
		WorkerId:    p.WorkerID,
		Limit:       p.BatchSize,
	})
	if err != nil {
		return summary, err
	}
	span.SetAttributes(attribute.Int("claimed", len(claimed)))

	for _, b := range buildOutboxBatches(claimed) {
		sendCtx := utils.SetCorrelationIdInContext(ctx, b.messages[0].CorrelationId)
		sendErr := b.err
		if sendErr == nil {
			sendErr = mailer.Validate(b.email)
		}
		if sendErr == nil {
			sendErr = p.Sender.Send(sendCtx, b.email)
		}

		for _, m := range b.messages {
			summary.Processed++
			switch {
			case sendErr == nil:
				markOutboxSucceeded(m, now)
				summary.Updated++
			case isPermanentDeliveryErr(sendErr):
				markOutboxDead(m, sendErr, now)
				summary.Failed++
			default:
				applyOutboxFailure(m, sendErr, cfg, now)
				summary.Failed++
			}
			p.logResult(m, sendErr)
			if err := p.Repo.SaveOutboxResult(ctx, m); err != nil {
				// claim goes stale and the message is retried
				p.Logger.WithFields(logrus.Fields{
					"field":     "OutboxProcessor",
					"record_id": m.ID,
				}).Error("save outbox result failed: " + err.Error())
			}
		}
	}
	return summary, nil
}

// RequeueDead moves Dead messages back to Pending; no ids means all of them.
func (p *OutboxProcessor) RequeueDead(ctx context.Context, ids []int) (int64, error) {
	n, err := p.Repo.RequeueDeadOutboxMessages(ctx, ids)
	if err != nil {
		return 0, err
	}
	p.Logger.WithFields(logrus.Fields{
		"field":    "OutboxProcessor",
		"ids":      ids,
		"requeued": n,
	}).Info("dead outbox messages requeued")
	return n, nil
}

func (p *OutboxProcessor) logResult(m *models.OutboxMessage, sendErr error) {
	entry := p.Logger.WithFields(logrus.Fields{
		"field":          "OutboxProcessor",
		"record_id":      m.ID,
		"type":           m.Type,
		"user_id":        m.UserId,
		"retry_count":    m.RetryCount,
		"status":         m.Status,
		"correlation_id": m.CorrelationId,
	})
	switch {
	case sendErr == nil:
		entry.Info("outbox message delivered")
	case m.Status == models.OutboxStatusDead:
		entry.Error("outbox message dead: " + sendErr.Error())
	default:
		entry.Warn("outbox delivery failed, will retry: " + sendErr.Error())
	}
}

// buildOutboxBatches decodes claimed rows and merges allocation notices per
// user so one pickup email lists every ready book.
func buildOutboxBatches(claimed []models.OutboxMessage) []outboxBatch {
	var batches []outboxBatch
	allocationBatch := map[int]int{}
	allocations := map[int][]ReservationAllocatedNotification{}

	for i := range claimed {
		m := &claimed[i]
		n, err := DecodeNotification(m.Type, m.Payload)
		if err != nil {
			batches = append(batches, outboxBatch{messages: []*models.OutboxMessage{m}, err: err})
			continue
		}
		if alloc, ok := n.(ReservationAllocatedNotification); ok {
			if idx, seen := allocationBatch[m.UserId]; seen {
				batches[idx].messages = append(batches[idx].messages, m)
				allocations[idx] = append(allocations[idx], alloc)
				continue
			}
			idx := len(batches)
			allocationBatch[m.UserId] = idx
			allocations[idx] = []ReservationAllocatedNotification{alloc}
			batches = append(batches, outboxBatch{messages: []*models.OutboxMessage{m}})
			continue
		}
		batches = append(batches, outboxBatch{messages: []*models.OutboxMessage{m}, email: n.Render()})
	}
	for idx, notes := range allocations {
		batches[idx].email = renderAllocations(notes)
	}
	return batches
}

func isPermanentDeliveryErr(err error) bool {
	return utils.IsBadRequest(err) || errors.Is(err, mailer.ErrInvalidEmail)
}

// OutboxBackoff is base * 2^retry, capped at maxDelay.
func OutboxBackoff(retry int, base, maxDelay time.Duration) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 30 {
		return maxDelay
	}
	d := base << uint(retry)
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}

func markOutboxSucceeded(m *models.OutboxMessage, now time.Time) {
	m.IsProcessed = true
	m.Status = models.OutboxStatusSucceeded
	m.ProcessedAt = utils.NewTime(now)
	m.NextAttemptAt = nil
	m.LastError = nil
}

func markOutboxDead(m *models.OutboxMessage, cause error, now time.Time) {
	msg := cause.Error()
	m.IsProcessed = true
	m.Status = models.OutboxStatusDead
	m.ProcessedAt = utils.NewTime(now)
	m.NextAttemptAt = nil
	m.LastError = &msg
}

// applyOutboxFailure records a failed attempt. The message is given up once
// its retry count exceeds the configured maximum.
func applyOutboxFailure(m *models.OutboxMessage, cause error, cfg RuleConfig, now time.Time) {
	m.RetryCount++
	if m.RetryCount > cfg.OutboxMaxRetryCount {
		markOutboxDead(m, cause, now)
		return
	}
	msg := cause.Error()
	m.LastError = &msg
	m.NextAttemptAt = utils.NewTime(now.Add(OutboxBackoff(m.RetryCount, cfg.OutboxRetryDelay, cfg.OutboxMaxRetryDelay)))
}
