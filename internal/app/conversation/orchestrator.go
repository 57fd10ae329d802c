package conversation

import (
	"context"
	"time"

	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const (
	SendFailedReply = "Error while sending your message. Try again later."
	RunFailedReply  = "Error while starting the assistant. Try again later."
)

// Conversant is the part of assistant.Client the orchestrator needs.
type Conversant interface {
	SendMessage(ctx context.Context, thread domain.ThreadID, text string, role domain.Role) bool
	RunAssistant(ctx context.Context, thread domain.ThreadID, tools []domain.ToolDescriptor) (domain.RunID, bool)
}

// RunPoller turns a started run into its answer.
type RunPoller interface {
	Poll(ctx context.Context, thread domain.ThreadID, run domain.RunID, onAttempt assistant.AttemptFunc) string
}

// Orchestrator runs one question through send, run and poll.
type Orchestrator struct {
	client Conversant
	poller RunPoller
	tools  []domain.ToolDescriptor
}

func NewOrchestrator(client Conversant, poller RunPoller, tools []domain.ToolDescriptor) *Orchestrator {
	return &Orchestrator{client: client, poller: poller, tools: tools}
}

// Answer never fails: a broken send or run yields a fixed reply and the
// poller always yields some text.
func (o *Orchestrator) Answer(ctx context.Context, thread domain.ThreadID, question string, liveness assistant.AttemptFunc) string {
	log := observability.LoggerFromContext(ctx).With("thread_id", thread)
	log.Info("answer started", "question_len", len(question))

	start := time.Now()
	if !o.client.SendMessage(ctx, thread, question, domain.RoleUser) {
		log.Warn("answer aborted", "step", "send", "elapsed_ms", time.Since(start).Milliseconds())
		return SendFailedReply
	}
	log.Info("step end", "step", "send", "elapsed_ms", time.Since(start).Milliseconds())

	start = time.Now()
	run, ok := o.client.RunAssistant(ctx, thread, o.tools)
	if !ok {
		log.Warn("answer aborted", "step", "run", "elapsed_ms", time.Since(start).Milliseconds())
		return RunFailedReply
	}
	log.Info("step end", "step", "run", "run_id", run, "elapsed_ms", time.Since(start).Milliseconds())

	start = time.Now()
	answer := o.poller.Poll(ctx, thread, run, liveness)
	log.Info("step end", "step", "poll", "run_id", run, "elapsed_ms", time.Since(start).Milliseconds())

	return answer
}
