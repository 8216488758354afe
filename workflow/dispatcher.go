package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DhruviKhanpara/LMS-sub001/models"
	"github.com/DhruviKhanpara/LMS-sub001/utils"
)

// Dispatcher writes notifications into the outbox through the caller's unit
// of work, so they commit or roll back with the change that caused them.
type Dispatcher struct{}

func (d Dispatcher) Dispatch(ctx context.Context, repo OutboxStore, n Notification) error {
	return d.DispatchMany(ctx, repo, []Notification{n})
}

func (d Dispatcher) DispatchMany(ctx context.Context, repo OutboxStore, ns []Notification) error {
	if len(ns) == 0 {
		return nil
	}
	correlationId := utils.CorrelationIdOrNew(ctx)
	msgs := make([]*models.OutboxMessage, 0, len(ns))
	for _, n := range ns {
		payload, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal %s notification: %w", n.Type(), err)
		}
		msgs = append(msgs, &models.OutboxMessage{
			Type:          n.Type(),
			Payload:       payload,
			UserId:        n.UserID(),
			Status:        models.OutboxStatusPending,
			CorrelationId: correlationId,
		})
	}
	return repo.CreateOutboxMessages(ctx, msgs)
}

// recordAudit appends one audit row. before may be nil for creations.
func recordAudit(ctx context.Context, repo AuditStore, entityType string, entityId int, before, after any, description string) error {
	action := models.AuditActionUpdate
	beforeJSON := ""
	if before == nil {
		action = models.AuditActionCreate
	} else {
		s, err := utils.MarshalToJSON(before)
		if err != nil {
			return err
		}
		beforeJSON = s
	}
	afterJSON, err := utils.MarshalToJSON(after)
	if err != nil {
		return err
	}

	userId, userName := utils.ActorFromContext(ctx)
	return repo.AppendAudit(ctx, &models.AuditLog{
		EntityType:    entityType,
		EntityId:      entityId,
		Action:        action,
		Before:        beforeJSON,
		After:         afterJSON,
		Description:   description,
		UserId:        userId,
		UserName:      userName,
		CorrelationId: utils.CorrelationIdOrNew(ctx),
	})
}
