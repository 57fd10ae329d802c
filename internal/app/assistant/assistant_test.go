package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// stubGateway embeds the port so each test only implements what it touches.
// Unimplemented methods panic through the nil interface, which the client
// turns into a failure sentinel.
type stubGateway struct {
	domain.AssistantGateway

	mu        sync.Mutex
	threadErr error
	sendErr   error
	runErr    error
	panicOn   string

	sentRole  domain.Role
	sentText  string
	runTools  []domain.ToolDescriptor
	runAsst   domain.AssistantID
	threadSeq int
}

var errGateway = errors.New("gateway unavailable")

func (s *stubGateway) CreateThread(ctx context.Context) (*domain.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panicOn == "create_thread" {
		panic("boom")
	}
	if s.threadErr != nil {
		return nil, s.threadErr
	}
	s.threadSeq++
	return &domain.Thread{ID: domain.ThreadID(fmt.Sprintf("t%d", s.threadSeq))}, nil
}

func (s *stubGateway) CreateMessage(ctx context.Context, thread domain.ThreadID, role domain.Role, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.sentRole, s.sentText = role, text
	return &domain.Message{ID: "m0", ThreadID: thread, Role: role}, nil
}

func (s *stubGateway) CreateRun(ctx context.Context, thread domain.ThreadID, asst domain.AssistantID, tools []domain.ToolDescriptor) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runErr != nil {
		return nil, s.runErr
	}
	s.runTools, s.runAsst = tools, asst
	return &domain.Run{ID: "r1", ThreadID: thread, AssistantID: asst}, nil
}

func (s *stubGateway) ListRunSteps(ctx context.Context, thread domain.ThreadID, run domain.RunID) ([]domain.RunStep, error) {
	return nil, errGateway
}

// scriptedSource serves a fixed step list per attempt and counts listings.
type scriptedSource struct {
	mu       sync.Mutex
	byList   map[int][]domain.RunStep
	messages map[domain.MessageID]*domain.Message
	listings int
}

func (s *scriptedSource) GetRunSteps(ctx context.Context, thread domain.ThreadID, run domain.RunID) []domain.RunStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings++
	return s.byList[s.listings]
}

func (s *scriptedSource) RetrieveMessage(ctx context.Context, thread domain.ThreadID, id domain.MessageID) (*domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

func (s *scriptedSource) Listings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings
}
