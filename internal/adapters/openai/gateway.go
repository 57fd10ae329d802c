// Package openai implements domain.AssistantGateway on top of the OpenAI
// Assistants API using github.com/sashabaranov/go-openai. Every SDK response
// is decoded into the strict domain variants before it leaves this package.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// AssistantsAPI captures the subset of the go-openai client used by the gateway.
type AssistantsAPI interface {
	CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	ModifyAssistant(ctx context.Context, assistantID string, request openai.AssistantRequest) (openai.Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) (openai.AssistantDeleteResponse, error)
	ListAssistants(ctx context.Context, limit *int, order *string, after *string, before *string) (openai.AssistantsList, error)

	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (openai.ThreadDeleteResponse, error)

	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	RetrieveMessage(ctx context.Context, threadID, messageID string) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)

	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListRuns(ctx context.Context, threadID string, pagination openai.Pagination) (openai.RunList, error)
	ListRunSteps(ctx context.Context, threadID string, runID string, pagination openai.Pagination) (openai.RunStepList, error)

	CreateFile(ctx context.Context, request openai.FileRequest) (openai.File, error)
	ListFiles(ctx context.Context) (openai.FilesList, error)
	GetFile(ctx context.Context, fileID string) (openai.File, error)
	DeleteFile(ctx context.Context, fileID string) error
}

const defaultFilePurpose = "assistants"

// Options configures the gateway.
type Options struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// Gateway implements domain.AssistantGateway via the Assistants API.
type Gateway struct {
	api AssistantsAPI
}

// New wraps an existing client. Tests pass a fake here.
func New(api AssistantsAPI) (*Gateway, error) {
	if api == nil {
		return nil, errors.New("assistants api client is required")
	}
	return &Gateway{api: api}, nil
}

// NewFromOptions builds a gateway with the default go-openai HTTP client.
func NewFromOptions(opts Options) (*Gateway, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("api key is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return New(openai.NewClientWithConfig(cfg))
}

// ─────────────────────────────────────────
// Assistants
// ─────────────────────────────────────────

func (g *Gateway) CreateAssistant(ctx context.Context, spec domain.AssistantSpec) (*domain.Assistant, error) {
	res, err := g.api.CreateAssistant(ctx, encodeAssistantSpec(spec))
	if err != nil {
		return nil, fmt.Errorf("openai create assistant: %w", err)
	}
	return decodeAssistant(res)
}

func (g *Gateway) RetrieveAssistant(ctx context.Context, id domain.AssistantID) (*domain.Assistant, error) {
	res, err := g.api.RetrieveAssistant(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("openai retrieve assistant %s: %w", id, err)
	}
	return decodeAssistant(res)
}

func (g *Gateway) UpdateAssistant(ctx context.Context, id domain.AssistantID, spec domain.AssistantSpec) (*domain.Assistant, error) {
	res, err := g.api.ModifyAssistant(ctx, string(id), encodeAssistantSpec(spec))
	if err != nil {
		return nil, fmt.Errorf("openai update assistant %s: %w", id, err)
	}
	return decodeAssistant(res)
}

func (g *Gateway) DeleteAssistant(ctx context.Context, id domain.AssistantID) error {
	if _, err := g.api.DeleteAssistant(ctx, string(id)); err != nil {
		return fmt.Errorf("openai delete assistant %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) ListAssistants(ctx context.Context) ([]domain.Assistant, error) {
	res, err := g.api.ListAssistants(ctx, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("openai list assistants: %w", err)
	}
	out := make([]domain.Assistant, 0, len(res.Assistants))
	for _, a := range res.Assistants {
		d, err := decodeAssistant(a)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// ─────────────────────────────────────────
// Threads
// ─────────────────────────────────────────

func (g *Gateway) CreateThread(ctx context.Context) (*domain.Thread, error) {
	res, err := g.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return nil, fmt.Errorf("openai create thread: %w", err)
	}
	return decodeThread(res)
}

func (g *Gateway) RetrieveThread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	res, err := g.api.RetrieveThread(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("openai retrieve thread %s: %w", id, err)
	}
	return decodeThread(res)
}

func (g *Gateway) DeleteThread(ctx context.Context, id domain.ThreadID) error {
	if _, err := g.api.DeleteThread(ctx, string(id)); err != nil {
		return fmt.Errorf("openai delete thread %s: %w", id, err)
	}
	return nil
}

// ─────────────────────────────────────────
// Messages
// ─────────────────────────────────────────

func (g *Gateway) CreateMessage(ctx context.Context, threadID domain.ThreadID, role domain.Role, text string) (*domain.Message, error) {
	res, err := g.api.CreateMessage(ctx, string(threadID), openai.MessageRequest{
		Role:    string(role),
		Content: text,
	})
	if err != nil {
		return nil, fmt.Errorf("openai create message in thread %s: %w", threadID, err)
	}
	return decodeMessage(res)
}

func (g *Gateway) RetrieveMessage(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID) (*domain.Message, error) {
	res, err := g.api.RetrieveMessage(ctx, string(threadID), string(messageID))
	if err != nil {
		return nil, fmt.Errorf("openai retrieve message %s in thread %s: %w", messageID, threadID, err)
	}
	return decodeMessage(res)
}

func (g *Gateway) ListMessages(ctx context.Context, threadID domain.ThreadID) ([]domain.Message, error) {
	res, err := g.api.ListMessage(ctx, string(threadID), nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("openai list messages in thread %s: %w", threadID, err)
	}
	out := make([]domain.Message, 0, len(res.Messages))
	for _, m := range res.Messages {
		d, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// ─────────────────────────────────────────
// Runs
// ─────────────────────────────────────────

func (g *Gateway) CreateRun(ctx context.Context, threadID domain.ThreadID, assistantID domain.AssistantID, tools []domain.ToolDescriptor) (*domain.Run, error) {
	req := openai.RunRequest{AssistantID: string(assistantID)}
	if len(tools) > 0 {
		req.Tools = encodeRunTools(tools)
	}
	res, err := g.api.CreateRun(ctx, string(threadID), req)
	if err != nil {
		return nil, fmt.Errorf("openai create run in thread %s: %w", threadID, err)
	}
	return decodeRun(res)
}

func (g *Gateway) RetrieveRun(ctx context.Context, threadID domain.ThreadID, runID domain.RunID) (*domain.Run, error) {
	res, err := g.api.RetrieveRun(ctx, string(threadID), string(runID))
	if err != nil {
		return nil, fmt.Errorf("openai retrieve run %s in thread %s: %w", runID, threadID, err)
	}
	return decodeRun(res)
}

func (g *Gateway) ListRuns(ctx context.Context, threadID domain.ThreadID) ([]domain.Run, error) {
	res, err := g.api.ListRuns(ctx, string(threadID), openai.Pagination{})
	if err != nil {
		return nil, fmt.Errorf("openai list runs in thread %s: %w", threadID, err)
	}
	out := make([]domain.Run, 0, len(res.Runs))
	for _, r := range res.Runs {
		d, err := decodeRun(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// ListRunSteps keeps the order returned by the API. A step whose details do
// not match its declared kind fails the whole listing with ErrUnexpectedShape.
func (g *Gateway) ListRunSteps(ctx context.Context, threadID domain.ThreadID, runID domain.RunID) ([]domain.RunStep, error) {
	res, err := g.api.ListRunSteps(ctx, string(threadID), string(runID), openai.Pagination{})
	if err != nil {
		return nil, fmt.Errorf("openai list steps of run %s: %w", runID, err)
	}
	out := make([]domain.RunStep, 0, len(res.RunSteps))
	for _, s := range res.RunSteps {
		d, err := decodeRunStep(s)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ─────────────────────────────────────────
// Files
// ─────────────────────────────────────────

func (g *Gateway) UploadFile(ctx context.Context, path, purpose string) (*domain.File, error) {
	if purpose == "" {
		purpose = defaultFilePurpose
	}
	res, err := g.api.CreateFile(ctx, openai.FileRequest{
		FilePath: path,
		Purpose:  purpose,
	})
	if err != nil {
		return nil, fmt.Errorf("openai upload file %s: %w", path, err)
	}
	return decodeFile(res)
}

func (g *Gateway) ListFiles(ctx context.Context, purpose string) ([]domain.File, error) {
	res, err := g.api.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai list files: %w", err)
	}
	out := make([]domain.File, 0, len(res.Files))
	for _, f := range res.Files {
		if purpose != "" && f.Purpose != purpose {
			continue
		}
		d, err := decodeFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (g *Gateway) RetrieveFile(ctx context.Context, id domain.FileID) (*domain.File, error) {
	res, err := g.api.GetFile(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("openai retrieve file %s: %w", id, err)
	}
	return decodeFile(res)
}

func (g *Gateway) DeleteFile(ctx context.Context, id domain.FileID) error {
	if err := g.api.DeleteFile(ctx, string(id)); err != nil {
		return fmt.Errorf("openai delete file %s: %w", id, err)
	}
	return nil
}
