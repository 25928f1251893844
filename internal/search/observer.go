package search

import (
	"context"
	"fmt"

	"github.com/octobees/supplier-outreach/internal/dispatch"
	"github.com/octobees/supplier-outreach/internal/entity"
	"github.com/octobees/supplier-outreach/internal/logger"
)

// Observer returns the dispatch observer that records send outcomes on
// suppliers and in the run log.
func (o *Orchestrator) Observer() dispatch.Observer {
	return dispatch.ObserverFuncs{
		Completed: o.onSent,
		Failed:    o.onFailed,
		Stalled:   o.onStalled,
	}
}

func (o *Orchestrator) observerContext(ev dispatch.Event) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	ctx, _ = logger.With(ctx, logger.Fields{
		logger.FieldComponent:  "search",
		logger.FieldSearchID:   ev.Job.SearchID,
		logger.FieldSupplierID: ev.Job.SupplierID,
		logger.FieldJobID:      ev.Job.ID,
	})
	return ctx, cancel
}

func (o *Orchestrator) onSent(ev dispatch.Event) {
	ctx, cancel := o.observerContext(ev)
	defer cancel()

	o.patch(ctx, ev.Job.SupplierID, entity.SupplierPatch{
		Status:        entity.StatusEmailSent,
		IncrementSent: true,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionOutbound,
			Subject:   ev.Job.Message.Subject,
			Body:      ev.Job.Message.Text,
			Provider:  o.cfg.Provider,
			JobID:     ev.Job.ID,
			MessageID: ev.Job.ProviderMessageID,
		},
		At: ev.At,
	})
	o.appendLog(ctx, ev.Job.SearchID, "info", "Email sent to "+recipientName(ev), map[string]any{
		"supplier_id": ev.Job.SupplierID,
		"job_id":      ev.Job.ID,
		"message_id":  ev.Job.ProviderMessageID,
		"attempts":    ev.Job.Attempts,
	})
}

func (o *Orchestrator) onFailed(ev dispatch.Event) {
	ctx, cancel := o.observerContext(ev)
	defer cancel()

	reason := ev.Job.LastError
	if ev.Err != nil {
		reason = ev.Err.Error()
	}
	notes := "Email delivery failed: " + reason
	o.patch(ctx, ev.Job.SupplierID, entity.SupplierPatch{
		Status: entity.StatusEmailFailed,
		Notes:  &notes,
		Event: &entity.ConversationEvent{
			Direction: entity.DirectionSystem,
			Subject:   ev.Job.Message.Subject,
			Provider:  o.cfg.Provider,
			JobID:     ev.Job.ID,
			Error:     reason,
		},
		At: ev.At,
	})
	o.appendLog(ctx, ev.Job.SearchID, "error", "Email to "+recipientName(ev)+" failed", map[string]any{
		"supplier_id": ev.Job.SupplierID,
		"job_id":      ev.Job.ID,
		"attempts":    ev.Job.Attempts,
		"error":       reason,
	})
}

func (o *Orchestrator) onStalled(ev dispatch.Event) {
	ctx, cancel := o.observerContext(ev)
	defer cancel()
	o.appendLog(ctx, ev.Job.SearchID, "warn", fmt.Sprintf("Email job %s stalled", ev.Job.ID), map[string]any{
		"supplier_id": ev.Job.SupplierID,
		"stalls":      ev.Job.Stalls,
		"error":       ev.Job.LastError,
	})
}

func recipientName(ev dispatch.Event) string {
	if ev.Job.Message.To.Name != "" {
		return ev.Job.Message.To.Name
	}
	return ev.Job.Message.To.Email
}
