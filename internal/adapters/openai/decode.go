package openai

import (
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

func encodeAssistantSpec(spec domain.AssistantSpec) openai.AssistantRequest {
	req := openai.AssistantRequest{Model: spec.Model}
	if spec.Name != "" {
		name := spec.Name
		req.Name = &name
	}
	if spec.Instructions != "" {
		instructions := spec.Instructions
		req.Instructions = &instructions
	}
	for _, t := range spec.Tools {
		req.Tools = append(req.Tools, openai.AssistantTool{Type: openai.AssistantToolType(t.Type)})
	}
	return req
}

func encodeRunTools(tools []domain.ToolDescriptor) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{Type: openai.ToolType(t.Type)})
	}
	return out
}

func decodeAssistant(a openai.Assistant) (*domain.Assistant, error) {
	if a.ID == "" {
		return nil, fmt.Errorf("assistant without id: %w", domain.ErrUnexpectedShape)
	}
	out := &domain.Assistant{
		ID:        domain.AssistantID(a.ID),
		Model:     a.Model,
		CreatedAt: unix(int64(a.CreatedAt)),
	}
	if a.Name != nil {
		out.Name = *a.Name
	}
	if a.Instructions != nil {
		out.Instructions = *a.Instructions
	}
	for _, t := range a.Tools {
		out.Tools = append(out.Tools, domain.ToolDescriptor{Type: string(t.Type)})
	}
	return out, nil
}

func decodeThread(t openai.Thread) (*domain.Thread, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("thread without id: %w", domain.ErrUnexpectedShape)
	}
	return &domain.Thread{
		ID:        domain.ThreadID(t.ID),
		CreatedAt: unix(int64(t.CreatedAt)),
	}, nil
}

func decodeRun(r openai.Run) (*domain.Run, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("run without id: %w", domain.ErrUnexpectedShape)
	}
	return &domain.Run{
		ID:          domain.RunID(r.ID),
		ThreadID:    domain.ThreadID(r.ThreadID),
		AssistantID: domain.AssistantID(r.AssistantID),
		Status:      domain.RunStatus(r.Status),
		CreatedAt:   unix(int64(r.CreatedAt)),
	}, nil
}

// decodeRunStep maps step details onto the known step kinds. A
// message_creation step without a message id is malformed.
func decodeRunStep(s openai.RunStep) (domain.RunStep, error) {
	step := domain.RunStep{
		ID:     s.ID,
		Status: domain.RunStatus(s.Status),
	}

	kind := string(s.StepDetails.Type)
	if kind == "" {
		kind = string(s.Type)
	}

	switch domain.StepKind(kind) {
	case domain.StepKindMessageCreation:
		mc := s.StepDetails.MessageCreation
		if mc == nil || mc.MessageID == "" {
			return domain.RunStep{}, fmt.Errorf("step %s: message_creation without message id: %w", s.ID, domain.ErrUnexpectedShape)
		}
		step.Kind = domain.StepKindMessageCreation
		step.MessageID = domain.MessageID(mc.MessageID)
	case domain.StepKindToolCalls:
		step.Kind = domain.StepKindToolCalls
	default:
		step.Kind = domain.StepKindUnknown
	}
	return step, nil
}

func decodeMessage(m openai.Message) (*domain.Message, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("message without id: %w", domain.ErrUnexpectedShape)
	}

	var role domain.Role
	switch domain.Role(m.Role) {
	case domain.RoleUser, domain.RoleAssistant:
		role = domain.Role(m.Role)
	default:
		return nil, fmt.Errorf("message %s: unknown role %q: %w", m.ID, m.Role, domain.ErrUnexpectedShape)
	}

	out := &domain.Message{
		ID:        domain.MessageID(m.ID),
		ThreadID:  domain.ThreadID(m.ThreadID),
		Role:      role,
		CreatedAt: unix(int64(m.CreatedAt)),
		Content:   make([]domain.Segment, 0, len(m.Content)),
	}
	for _, c := range m.Content {
		out.Content = append(out.Content, decodeSegment(c))
	}
	return out, nil
}

func decodeSegment(c openai.MessageContent) domain.Segment {
	switch domain.SegmentKind(c.Type) {
	case domain.SegmentKindText:
		if c.Text != nil {
			v := c.Text.Value
			return domain.Segment{Kind: domain.SegmentKindText, Text: &v, Raw: v}
		}
	case domain.SegmentKindImageFile:
		if c.ImageFile != nil {
			return domain.Segment{
				Kind: domain.SegmentKindImageFile,
				Raw:  "[image_file:" + c.ImageFile.FileID + "]",
			}
		}
	}
	return domain.Segment{Kind: domain.SegmentKindOther, Raw: rawSegment(c)}
}

func rawSegment(c openai.MessageContent) string {
	b, err := json.Marshal(c)
	if err != nil {
		return c.Type
	}
	return string(b)
}

func decodeFile(f openai.File) (*domain.File, error) {
	if f.ID == "" {
		return nil, fmt.Errorf("file without id: %w", domain.ErrUnexpectedShape)
	}
	return &domain.File{
		ID:        domain.FileID(f.ID),
		Name:      f.FileName,
		Purpose:   f.Purpose,
		Bytes:     int64(f.Bytes),
		CreatedAt: unix(int64(f.CreatedAt)),
	}, nil
}

func unix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
