package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/liliang-cn/doclens/internal/domain"
)

const queryFallback = "Failed to get answer. Please try again."

// Ask appends the question to the log right away, then waits for the
// answer. On failure the question stays in the log unanswered and an error
// notification is raised; nothing is retried.
//
// Blank questions, questions before any successful upload, and questions
// while another one is in flight are rejected without contacting the backend
func (o *Orchestrator) Ask(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("%w: question is blank", domain.ErrValidation)
	}

	o.mu.Lock()
	flows := o.flows
	if !flows.querySem.TryAcquire(1) {
		o.mu.Unlock()
		return domain.ErrQueryInFlight
	}
	defer flows.querySem.Release(1)

	if !o.session.IsDocumentUploaded {
		o.mu.Unlock()
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrNoDocument)
	}
	history := []domain.Turn{}
	if o.history == domain.HistoryPrior {
		history = domain.Turns(o.session.Messages)
	}
	userMsg := o.newMessage(domain.RoleUser, question)
	o.session.Messages = append(o.session.Messages, userMsg)
	sessionID, gen := o.session.ID, o.gen
	flows.querying = true
	o.mu.Unlock()

	o.recordMessage(ctx, sessionID, userMsg)
	o.publish()

	result, err := o.gateway.SubmitQuery(ctx, question, sessionID, history)

	o.mu.Lock()
	flows.querying = false
	if gen != o.gen {
		o.mu.Unlock()
		o.logger.Info("answer arrived for discarded session", zap.String("session_id", sessionID))
		return domain.ErrSessionDiscarded
	}
	if err != nil {
		o.mu.Unlock()
		o.publish()
		o.logger.Warn("query failed", zap.String("session_id", sessionID), zap.Error(err))
		o.notifier.Notify(domain.NotifyError, failureMessage(err, queryFallback))
		return fmt.Errorf("asking question: %w", err)
	}
	answer := o.newMessage(domain.RoleAssistant, result.Answer)
	o.session.Messages = append(o.session.Messages, answer)
	o.mu.Unlock()

	o.recordMessage(ctx, sessionID, answer)
	o.publish()
	return nil
}

func (o *Orchestrator) recordMessage(ctx context.Context, sessionID string, m domain.Message) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.MessageAppended(ctx, sessionID, m); err != nil {
		o.logger.Error("failed to archive message",
			zap.String("session_id", sessionID),
			zap.String("message_id", m.ID),
			zap.Error(err),
		)
	}
}
