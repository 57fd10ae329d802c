package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

var (
	ErrNoThread      = errors.New("user has no thread")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Service is what transports talk to.
type Service struct {
	registry     *Registry
	orchestrator *Orchestrator
}

func NewService(registry *Registry, orchestrator *Orchestrator) *Service {
	return &Service{registry: registry, orchestrator: orchestrator}
}

type StartSessionOutput struct {
	ThreadID domain.ThreadID
}

func (s *Service) StartSession(ctx context.Context, user domain.UserID) (*StartSessionOutput, error) {
	id, err := s.registry.EnsureThread(ctx, user)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to start session", "user_id", user, "error", err)
		return nil, err
	}
	return &StartSessionOutput{ThreadID: id}, nil
}

func (s *Service) ResetSession(ctx context.Context, user domain.UserID) (*StartSessionOutput, error) {
	id, err := s.registry.ResetThread(ctx, user)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to reset session", "user_id", user, "error", err)
		return nil, err
	}
	return &StartSessionOutput{ThreadID: id}, nil
}

// HasSession reports whether the user is bound to a thread.
func (s *Service) HasSession(ctx context.Context, user domain.UserID) (bool, error) {
	_, ok, err := s.registry.Lookup(ctx, user)
	return ok, err
}

type AskInput struct {
	UserID   domain.UserID
	Question string
	// OnAttempt is called on every poll attempt. Optional.
	OnAttempt assistant.AttemptFunc
}

type AskOutput struct {
	ThreadID domain.ThreadID
	Answer   string
}

// Ask checks the binding and then the question before touching the
// assistant, so ErrNoThread and ErrEmptyQuestion cost no gateway calls.
func (s *Service) Ask(ctx context.Context, in AskInput) (*AskOutput, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", in.UserID)

	thread, ok, err := s.registry.Lookup(ctx, in.UserID)
	if err != nil {
		log.Error("failed to look up session", "error", err)
		return nil, err
	}
	if !ok {
		log.Debug("ask rejected", "reason", "no thread")
		return nil, ErrNoThread
	}

	question := strings.TrimSpace(in.Question)
	if question == "" {
		log.Debug("ask rejected", "reason", "empty question")
		return nil, ErrEmptyQuestion
	}

	answer := s.orchestrator.Answer(ctx, thread, question, in.OnAttempt)
	return &AskOutput{ThreadID: thread, Answer: answer}, nil
}
