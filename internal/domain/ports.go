package domain

import (
	"context"
	"errors"
)

// ErrUnexpectedShape is returned by gateways when a remote response cannot be
// decoded into one of the known variants.
var ErrUnexpectedShape = errors.New("unexpected response shape")

// AssistantGateway defines how the core application talks to the remote assistant service.
// Implementations return errors; callers decide how to degrade.
type AssistantGateway interface {
	CreateAssistant(ctx context.Context, spec AssistantSpec) (*Assistant, error)
	RetrieveAssistant(ctx context.Context, id AssistantID) (*Assistant, error)
	UpdateAssistant(ctx context.Context, id AssistantID, spec AssistantSpec) (*Assistant, error)
	DeleteAssistant(ctx context.Context, id AssistantID) error
	ListAssistants(ctx context.Context) ([]Assistant, error)

	CreateThread(ctx context.Context) (*Thread, error)
	RetrieveThread(ctx context.Context, id ThreadID) (*Thread, error)
	DeleteThread(ctx context.Context, id ThreadID) error

	CreateMessage(ctx context.Context, threadID ThreadID, role Role, text string) (*Message, error)
	RetrieveMessage(ctx context.Context, threadID ThreadID, messageID MessageID) (*Message, error)
	ListMessages(ctx context.Context, threadID ThreadID) ([]Message, error)

	CreateRun(ctx context.Context, threadID ThreadID, assistantID AssistantID, tools []ToolDescriptor) (*Run, error)
	RetrieveRun(ctx context.Context, threadID ThreadID, runID RunID) (*Run, error)
	ListRuns(ctx context.Context, threadID ThreadID) ([]Run, error)
	ListRunSteps(ctx context.Context, threadID ThreadID, runID RunID) ([]RunStep, error)

	UploadFile(ctx context.Context, path, purpose string) (*File, error)
	ListFiles(ctx context.Context, purpose string) ([]File, error)
	RetrieveFile(ctx context.Context, id FileID) (*File, error)
	DeleteFile(ctx context.Context, id FileID) error
}

// SessionStore defines persistence of user → thread bindings.
// Get reports ok=false when the user has no binding yet; that is not an error.
type SessionStore interface {
	Get(ctx context.Context, userID UserID) (SessionEntry, bool, error)
	// PutIfAbsent stores entry only when no binding exists for entry.UserID.
	// It returns the binding that is stored after the call and whether entry was inserted.
	PutIfAbsent(ctx context.Context, entry SessionEntry) (SessionEntry, bool, error)
	Put(ctx context.Context, entry SessionEntry) error
	Delete(ctx context.Context, userID UserID) error
}

// SessionLister is implemented by stores that can enumerate bindings,
// most recently updated first.
type SessionLister interface {
	List(ctx context.Context, limit int) ([]SessionEntry, error)
}
