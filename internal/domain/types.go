package domain

import "time"

// UserID is the messaging-platform identity of a user.
type UserID int64

type ThreadID string
type RunID string
type MessageID string
type AssistantID string
type FileID string

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RunStatus mirrors the status progression reported by the assistant service.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusExpired        RunStatus = "expired"
	RunStatusIncomplete     RunStatus = "incomplete"
)

// StepKind discriminates the run steps the bridge knows how to interpret.
type StepKind string

const (
	StepKindMessageCreation StepKind = "message_creation"
	StepKindToolCalls       StepKind = "tool_calls"
	StepKindUnknown         StepKind = "unknown"
)

// SegmentKind discriminates message content segments.
type SegmentKind string

const (
	SegmentKindText      SegmentKind = "text"
	SegmentKindImageFile SegmentKind = "image_file"
	SegmentKindOther     SegmentKind = "other"
)

type Timestamp = time.Time
