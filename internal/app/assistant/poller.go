package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const (
	DefaultMaxAttempts = 20
	DefaultInterval    = time.Second

	FallbackAnswer = "Could not get a response from the assistant. Try again later."
)

// StepSource is the part of Client the poller reads from.
type StepSource interface {
	GetRunSteps(ctx context.Context, thread domain.ThreadID, run domain.RunID) []domain.RunStep
	RetrieveMessage(ctx context.Context, thread domain.ThreadID, message domain.MessageID) (*domain.Message, bool)
}

// AttemptFunc is called at the start of every attempt, typically to show a
// typing indicator. Its errors are ignored.
type AttemptFunc func(ctx context.Context, attempt int) error

// Poller waits for a run to produce text by listing its steps at a fixed
// interval.
type Poller struct {
	Source      StepSource
	MaxAttempts int
	Interval    time.Duration
	Fallback    string

	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewPoller(src StepSource, maxAttempts int, interval time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval < 0 {
		interval = DefaultInterval
	}
	return &Poller{
		Source:      src,
		MaxAttempts: maxAttempts,
		Interval:    interval,
		Fallback:    FallbackAnswer,
		Sleep:       sleepCtx,
	}
}

// Poll returns the first non-blank text produced by a message_creation step.
// When attempts run out it returns the last non-empty candidate or the
// fallback answer. It never fails.
func (p *Poller) Poll(ctx context.Context, thread domain.ThreadID, run domain.RunID, onAttempt AttemptFunc) string {
	log := observability.LoggerFromContext(ctx).With("thread_id", thread, "run_id", run)

	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var candidate string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if onAttempt != nil {
			notify(ctx, onAttempt, attempt)
		}

		for _, step := range p.Source.GetRunSteps(ctx, thread, run) {
			if step.Kind != domain.StepKindMessageCreation || step.MessageID == "" {
				continue
			}
			msg, ok := p.Source.RetrieveMessage(ctx, thread, step.MessageID)
			if !ok {
				continue
			}
			text := ExtractText(msg.Content)
			if text != "" {
				candidate = text
			}
			if strings.TrimSpace(text) != "" {
				log.Info("assistant answer received", "attempt", attempt)
				return text
			}
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			log.Warn("polling interrupted", "attempt", attempt, "error", err)
			break
		}
	}

	if candidate != "" {
		log.Warn("polling exhausted, returning partial answer", "max_attempts", maxAttempts)
		return candidate
	}
	log.Warn("polling exhausted without answer", "max_attempts", maxAttempts)
	if p.Fallback == "" {
		return FallbackAnswer
	}
	return p.Fallback
}

func notify(ctx context.Context, fn AttemptFunc, attempt int) {
	defer func() {
		if r := recover(); r != nil {
			observability.LoggerFromContext(ctx).Debug("attempt callback panicked", "attempt", attempt, "panic", r)
		}
	}()
	if err := fn(ctx, attempt); err != nil {
		observability.LoggerFromContext(ctx).Debug("attempt callback failed", "attempt", attempt, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
