package openai

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// Operation names used by MockGateway for call counting and failure injection.
const (
	OpCreateThread    = "create_thread"
	OpDeleteThread    = "delete_thread"
	OpCreateMessage   = "create_message"
	OpRetrieveMessage = "retrieve_message"
	OpCreateRun       = "create_run"
	OpListRunSteps    = "list_run_steps"
)

// MockGateway is an in-memory domain.AssistantGateway. A run produces its
// assistant message after StepsUntilReply step listings.
type MockGateway struct {
	// StepsUntilReply is the listing on which the reply first shows up (1-based).
	StepsUntilReply int
	// Reply builds the assistant answer from the last user message.
	Reply func(question string) string

	mu         sync.Mutex
	now        func() time.Time
	assistants map[domain.AssistantID]*domain.Assistant
	threads    map[domain.ThreadID]*domain.Thread
	messages   map[domain.ThreadID][]*domain.Message
	runs       map[domain.RunID]*mockRun
	files      map[domain.FileID]*domain.File
	failures   map[string]error
	calls      map[string]int
}

type mockRun struct {
	run      domain.Run
	question string
	listings int
	reply    *domain.Message
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		StepsUntilReply: 1,
		Reply: func(question string) string {
			return fmt.Sprintf("You said %q. This is a mock assistant.", question)
		},
		now:        time.Now,
		assistants: make(map[domain.AssistantID]*domain.Assistant),
		threads:    make(map[domain.ThreadID]*domain.Thread),
		messages:   make(map[domain.ThreadID][]*domain.Message),
		runs:       make(map[domain.RunID]*mockRun),
		files:      make(map[domain.FileID]*domain.File),
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (m *MockGateway) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls reports how many times op was invoked.
func (m *MockGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// track must be called with m.mu held.
func (m *MockGateway) track(op string) error {
	m.calls[op]++
	return m.failures[op]
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// ─────────────────────────────────────────
// Assistants
// ─────────────────────────────────────────

func (m *MockGateway) CreateAssistant(ctx context.Context, spec domain.AssistantSpec) (*domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("create_assistant"); err != nil {
		return nil, err
	}
	a := &domain.Assistant{
		ID:           domain.AssistantID(newID("asst")),
		Name:         spec.Name,
		Model:        spec.Model,
		Instructions: spec.Instructions,
		Tools:        spec.Tools,
		CreatedAt:    m.now(),
	}
	m.assistants[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *MockGateway) RetrieveAssistant(ctx context.Context, id domain.AssistantID) (*domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("retrieve_assistant"); err != nil {
		return nil, err
	}
	a, ok := m.assistants[id]
	if !ok {
		return nil, fmt.Errorf("assistant %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *MockGateway) UpdateAssistant(ctx context.Context, id domain.AssistantID, spec domain.AssistantSpec) (*domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("update_assistant"); err != nil {
		return nil, err
	}
	a, ok := m.assistants[id]
	if !ok {
		return nil, fmt.Errorf("assistant %s not found", id)
	}
	if spec.Name != "" {
		a.Name = spec.Name
	}
	if spec.Model != "" {
		a.Model = spec.Model
	}
	if spec.Instructions != "" {
		a.Instructions = spec.Instructions
	}
	if spec.Tools != nil {
		a.Tools = spec.Tools
	}
	cp := *a
	return &cp, nil
}

func (m *MockGateway) DeleteAssistant(ctx context.Context, id domain.AssistantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("delete_assistant"); err != nil {
		return err
	}
	if _, ok := m.assistants[id]; !ok {
		return fmt.Errorf("assistant %s not found", id)
	}
	delete(m.assistants, id)
	return nil
}

func (m *MockGateway) ListAssistants(ctx context.Context) ([]domain.Assistant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("list_assistants"); err != nil {
		return nil, err
	}
	out := make([]domain.Assistant, 0, len(m.assistants))
	for _, a := range m.assistants {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ─────────────────────────────────────────
// Threads
// ─────────────────────────────────────────

func (m *MockGateway) CreateThread(ctx context.Context) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpCreateThread); err != nil {
		return nil, err
	}
	t := &domain.Thread{ID: domain.ThreadID(newID("thread")), CreatedAt: m.now()}
	m.threads[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *MockGateway) RetrieveThread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("retrieve_thread"); err != nil {
		return nil, err
	}
	t, ok := m.threads[id]
	if !ok {
		return nil, fmt.Errorf("thread %s not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *MockGateway) DeleteThread(ctx context.Context, id domain.ThreadID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpDeleteThread); err != nil {
		return err
	}
	if _, ok := m.threads[id]; !ok {
		return fmt.Errorf("thread %s not found", id)
	}
	delete(m.threads, id)
	delete(m.messages, id)
	return nil
}

// ─────────────────────────────────────────
// Messages
// ─────────────────────────────────────────

func (m *MockGateway) CreateMessage(ctx context.Context, threadID domain.ThreadID, role domain.Role, text string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpCreateMessage); err != nil {
		return nil, err
	}
	if _, ok := m.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	msg := m.appendMessage(threadID, role, text)
	cp := *msg
	return &cp, nil
}

func (m *MockGateway) appendMessage(threadID domain.ThreadID, role domain.Role, text string) *domain.Message {
	v := text
	msg := &domain.Message{
		ID:        domain.MessageID(newID("msg")),
		ThreadID:  threadID,
		Role:      role,
		Content:   []domain.Segment{{Kind: domain.SegmentKindText, Text: &v, Raw: v}},
		CreatedAt: m.now(),
	}
	m.messages[threadID] = append(m.messages[threadID], msg)
	return msg
}

func (m *MockGateway) RetrieveMessage(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpRetrieveMessage); err != nil {
		return nil, err
	}
	for _, msg := range m.messages[threadID] {
		if msg.ID == messageID {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("message %s not found in thread %s", messageID, threadID)
}

func (m *MockGateway) ListMessages(ctx context.Context, threadID domain.ThreadID) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("list_messages"); err != nil {
		return nil, err
	}
	msgs := m.messages[threadID]
	out := make([]domain.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, *msg)
	}
	return out, nil
}

// ─────────────────────────────────────────
// Runs
// ─────────────────────────────────────────

func (m *MockGateway) CreateRun(ctx context.Context, threadID domain.ThreadID, assistantID domain.AssistantID, tools []domain.ToolDescriptor) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpCreateRun); err != nil {
		return nil, err
	}
	if _, ok := m.threads[threadID]; !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}

	var question string
	msgs := m.messages[threadID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser && len(msgs[i].Content) > 0 {
			question = msgs[i].Content[0].Raw
			break
		}
	}

	r := &mockRun{
		run: domain.Run{
			ID:          domain.RunID(newID("run")),
			ThreadID:    threadID,
			AssistantID: assistantID,
			Status:      domain.RunStatusQueued,
			CreatedAt:   m.now(),
		},
		question: question,
	}
	m.runs[r.run.ID] = r
	cp := r.run
	return &cp, nil
}

func (m *MockGateway) RetrieveRun(ctx context.Context, threadID domain.ThreadID, runID domain.RunID) (*domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("retrieve_run"); err != nil {
		return nil, err
	}
	r, ok := m.runs[runID]
	if !ok || r.run.ThreadID != threadID {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	cp := r.run
	return &cp, nil
}

func (m *MockGateway) ListRuns(ctx context.Context, threadID domain.ThreadID) ([]domain.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("list_runs"); err != nil {
		return nil, err
	}
	var out []domain.Run
	for _, r := range m.runs {
		if r.run.ThreadID == threadID {
			out = append(out, r.run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MockGateway) ListRunSteps(ctx context.Context, threadID domain.ThreadID, runID domain.RunID) ([]domain.RunStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track(OpListRunSteps); err != nil {
		return nil, err
	}
	r, ok := m.runs[runID]
	if !ok || r.run.ThreadID != threadID {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	r.listings++
	r.run.Status = domain.RunStatusInProgress
	if r.reply == nil && r.listings >= m.StepsUntilReply {
		r.reply = m.appendMessage(threadID, domain.RoleAssistant, m.Reply(r.question))
		r.run.Status = domain.RunStatusCompleted
	}
	if r.reply == nil {
		return []domain.RunStep{}, nil
	}
	return []domain.RunStep{{
		ID:        "step_" + string(r.reply.ID),
		Kind:      domain.StepKindMessageCreation,
		Status:    domain.RunStatusCompleted,
		MessageID: r.reply.ID,
	}}, nil
}

// ─────────────────────────────────────────
// Files
// ─────────────────────────────────────────

func (m *MockGateway) UploadFile(ctx context.Context, path, purpose string) (*domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("upload_file"); err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = defaultFilePurpose
	}
	f := &domain.File{
		ID:        domain.FileID(newID("file")),
		Name:      path,
		Purpose:   purpose,
		CreatedAt: m.now(),
	}
	m.files[f.ID] = f
	cp := *f
	return &cp, nil
}

func (m *MockGateway) ListFiles(ctx context.Context, purpose string) ([]domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("list_files"); err != nil {
		return nil, err
	}
	var out []domain.File
	for _, f := range m.files {
		if purpose == "" || f.Purpose == purpose {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (m *MockGateway) RetrieveFile(ctx context.Context, id domain.FileID) (*domain.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("retrieve_file"); err != nil {
		return nil, err
	}
	f, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file %s not found", id)
	}
	cp := *f
	return &cp, nil
}

func (m *MockGateway) DeleteFile(ctx context.Context, id domain.FileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("delete_file"); err != nil {
		return err
	}
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file %s not found", id)
	}
	delete(m.files, id)
	return nil
}

var _ domain.AssistantGateway = (*MockGateway)(nil)
var _ domain.AssistantGateway = (*Gateway)(nil)
