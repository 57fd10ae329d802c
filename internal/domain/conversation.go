package domain

// Thread is a remote, ordered log of messages kept by the assistant service.
type Thread struct {
	ID        ThreadID
	CreatedAt Timestamp
}

// SessionEntry binds one user to the thread currently used for their conversation.
type SessionEntry struct {
	UserID    UserID
	ThreadID  ThreadID
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Run is one assistant invocation against a thread.
type Run struct {
	ID          RunID
	ThreadID    ThreadID
	AssistantID AssistantID
	Status      RunStatus
	CreatedAt   Timestamp
}

// RunStep is one recorded unit of progress within a run.
// MessageID is set only when Kind is StepKindMessageCreation.
type RunStep struct {
	ID        string
	Kind      StepKind
	Status    RunStatus
	MessageID MessageID
}

// Segment is one piece of structured message content.
// Text is non-nil only for text segments; Raw always holds the segment's string form.
type Segment struct {
	Kind SegmentKind
	Text *string
	Raw  string
}

// Message represents one turn in a thread (user or assistant)
type Message struct {
	ID        MessageID
	ThreadID  ThreadID
	Role      Role
	Content   []Segment
	CreatedAt Timestamp
}

// ToolDescriptor names a tool the assistant may use during a run.
type ToolDescriptor struct {
	Type string
}

// Assistant is the remote assistant configuration.
type Assistant struct {
	ID           AssistantID
	Name         string
	Model        string
	Instructions string
	Tools        []ToolDescriptor
	CreatedAt    Timestamp
}

// AssistantSpec holds the writable fields of an assistant.
type AssistantSpec struct {
	Name         string
	Model        string
	Instructions string
	Tools        []ToolDescriptor
}

// File is a file uploaded to the assistant service.
type File struct {
	ID        FileID
	Name      string
	Purpose   string
	Bytes     int64
	CreatedAt Timestamp
}
