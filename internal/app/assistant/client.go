// Package assistant wraps the assistant gateway for the bot. Every call is
// bounded by an in-flight limit and an optional pace, and failures come back
// as zero values after being logged.
package assistant

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const defaultMaxInFlight = 8

type Options struct {
	AssistantID domain.AssistantID
	// MaxInFlight caps concurrent gateway calls. Zero means the default.
	MaxInFlight int
	// RPS paces gateway calls. Zero disables pacing.
	RPS float64
}

type Client struct {
	gw          domain.AssistantGateway
	assistantID domain.AssistantID
	sem         *semaphore.Weighted
	limiter     *rate.Limiter
}

func NewClient(gw domain.AssistantGateway, opts Options) *Client {
	n := opts.MaxInFlight
	if n <= 0 {
		n = defaultMaxInFlight
	}
	c := &Client{
		gw:          gw,
		assistantID: opts.AssistantID,
		sem:         semaphore.NewWeighted(int64(n)),
	}
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c
}

// AssistantID is the assistant runs are started with.
func (c *Client) AssistantID() domain.AssistantID {
	return c.assistantID
}

// call runs fn once a pool slot is free and the pace allows it.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...any) error {
	log := observability.LoggerFromContext(ctx).With(append([]any{"op", op}, attrs...)...)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		log.Error("gateway call not started", "error", err)
		return err
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Error("gateway call not started", "error", err)
			return err
		}
	}

	start := time.Now()
	err := guard(ctx, fn)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("gateway call failed", "elapsed_ms", elapsed, "error", err)
		return err
	}
	log.Debug("gateway call ok", "elapsed_ms", elapsed)
	return nil
}

func guard(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gateway panic: %v", r)
		}
	}()
	return fn(ctx)
}

// ─────────────────────────────────────────
// Conversation path
// ─────────────────────────────────────────

// CreateThread returns false when the thread could not be created.
func (c *Client) CreateThread(ctx context.Context) (domain.ThreadID, bool) {
	var id domain.ThreadID
	err := c.call(ctx, "create_thread", func(ctx context.Context) error {
		t, err := c.gw.CreateThread(ctx)
		if err != nil {
			return err
		}
		id = t.ID
		return nil
	})
	if err != nil {
		return "", false
	}
	observability.LoggerFromContext(ctx).Info("thread created", "thread_id", id)
	return id, true
}

// SendMessage appends text to the thread. An empty role means user.
func (c *Client) SendMessage(ctx context.Context, thread domain.ThreadID, text string, role domain.Role) bool {
	if role == "" {
		role = domain.RoleUser
	}
	err := c.call(ctx, "send_message", func(ctx context.Context) error {
		_, err := c.gw.CreateMessage(ctx, thread, role, text)
		return err
	}, "thread_id", thread, "role", role)
	return err == nil
}

// RunAssistant starts a run of the configured assistant. Tools are attached
// only when given.
func (c *Client) RunAssistant(ctx context.Context, thread domain.ThreadID, tools []domain.ToolDescriptor) (domain.RunID, bool) {
	var id domain.RunID
	err := c.call(ctx, "run_assistant", func(ctx context.Context) error {
		r, err := c.gw.CreateRun(ctx, thread, c.assistantID, tools)
		if err != nil {
			return err
		}
		id = r.ID
		return nil
	}, "thread_id", thread, "assistant_id", c.assistantID, "tools", len(tools))
	if err != nil {
		return "", false
	}
	observability.LoggerFromContext(ctx).Info("run started", "thread_id", thread, "run_id", id)
	return id, true
}

// GetRunSteps lists the steps recorded so far, in gateway order. It returns an
// empty list on failure.
func (c *Client) GetRunSteps(ctx context.Context, thread domain.ThreadID, run domain.RunID) []domain.RunStep {
	var steps []domain.RunStep
	err := c.call(ctx, "get_run_steps", func(ctx context.Context) error {
		var err error
		steps, err = c.gw.ListRunSteps(ctx, thread, run)
		return err
	}, "thread_id", thread, "run_id", run)
	if err != nil || steps == nil {
		return []domain.RunStep{}
	}
	return steps
}

func (c *Client) RetrieveMessage(ctx context.Context, thread domain.ThreadID, message domain.MessageID) (*domain.Message, bool) {
	var msg *domain.Message
	err := c.call(ctx, "retrieve_message", func(ctx context.Context) error {
		var err error
		msg, err = c.gw.RetrieveMessage(ctx, thread, message)
		return err
	}, "thread_id", thread, "message_id", message)
	if err != nil || msg == nil {
		return nil, false
	}
	return msg, true
}

// DeleteThread is used to drop threads nobody ended up bound to.
func (c *Client) DeleteThread(ctx context.Context, thread domain.ThreadID) bool {
	err := c.call(ctx, "delete_thread", func(ctx context.Context) error {
		return c.gw.DeleteThread(ctx, thread)
	}, "thread_id", thread)
	return err == nil
}

func (c *Client) RetrieveThread(ctx context.Context, thread domain.ThreadID) (*domain.Thread, bool) {
	var t *domain.Thread
	err := c.call(ctx, "retrieve_thread", func(ctx context.Context) error {
		var err error
		t, err = c.gw.RetrieveThread(ctx, thread)
		return err
	}, "thread_id", thread)
	if err != nil || t == nil {
		return nil, false
	}
	return t, true
}

func (c *Client) ListMessages(ctx context.Context, thread domain.ThreadID) []domain.Message {
	var out []domain.Message
	err := c.call(ctx, "list_messages", func(ctx context.Context) error {
		var err error
		out, err = c.gw.ListMessages(ctx, thread)
		return err
	}, "thread_id", thread)
	if err != nil || out == nil {
		return []domain.Message{}
	}
	return out
}

func (c *Client) RetrieveRun(ctx context.Context, thread domain.ThreadID, run domain.RunID) (*domain.Run, bool) {
	var r *domain.Run
	err := c.call(ctx, "retrieve_run", func(ctx context.Context) error {
		var err error
		r, err = c.gw.RetrieveRun(ctx, thread, run)
		return err
	}, "thread_id", thread, "run_id", run)
	if err != nil || r == nil {
		return nil, false
	}
	return r, true
}

func (c *Client) ListRuns(ctx context.Context, thread domain.ThreadID) []domain.Run {
	var out []domain.Run
	err := c.call(ctx, "list_runs", func(ctx context.Context) error {
		var err error
		out, err = c.gw.ListRuns(ctx, thread)
		return err
	}, "thread_id", thread)
	if err != nil || out == nil {
		return []domain.Run{}
	}
	return out
}

// ─────────────────────────────────────────
// Assistants
// ─────────────────────────────────────────

func (c *Client) CreateAssistant(ctx context.Context, spec domain.AssistantSpec) (*domain.Assistant, bool) {
	var a *domain.Assistant
	err := c.call(ctx, "create_assistant", func(ctx context.Context) error {
		var err error
		a, err = c.gw.CreateAssistant(ctx, spec)
		return err
	}, "model", spec.Model)
	if err != nil || a == nil {
		return nil, false
	}
	return a, true
}

func (c *Client) RetrieveAssistant(ctx context.Context, id domain.AssistantID) (*domain.Assistant, bool) {
	var a *domain.Assistant
	err := c.call(ctx, "retrieve_assistant", func(ctx context.Context) error {
		var err error
		a, err = c.gw.RetrieveAssistant(ctx, id)
		return err
	}, "assistant_id", id)
	if err != nil || a == nil {
		return nil, false
	}
	return a, true
}

func (c *Client) UpdateAssistant(ctx context.Context, id domain.AssistantID, spec domain.AssistantSpec) (*domain.Assistant, bool) {
	var a *domain.Assistant
	err := c.call(ctx, "update_assistant", func(ctx context.Context) error {
		var err error
		a, err = c.gw.UpdateAssistant(ctx, id, spec)
		return err
	}, "assistant_id", id)
	if err != nil || a == nil {
		return nil, false
	}
	return a, true
}

func (c *Client) DeleteAssistant(ctx context.Context, id domain.AssistantID) bool {
	err := c.call(ctx, "delete_assistant", func(ctx context.Context) error {
		return c.gw.DeleteAssistant(ctx, id)
	}, "assistant_id", id)
	return err == nil
}

func (c *Client) ListAssistants(ctx context.Context) []domain.Assistant {
	var out []domain.Assistant
	err := c.call(ctx, "list_assistants", func(ctx context.Context) error {
		var err error
		out, err = c.gw.ListAssistants(ctx)
		return err
	})
	if err != nil || out == nil {
		return []domain.Assistant{}
	}
	return out
}

// ─────────────────────────────────────────
// Files
// ─────────────────────────────────────────

func (c *Client) UploadFile(ctx context.Context, path, purpose string) (*domain.File, bool) {
	var f *domain.File
	err := c.call(ctx, "upload_file", func(ctx context.Context) error {
		var err error
		f, err = c.gw.UploadFile(ctx, path, purpose)
		return err
	}, "path", path, "purpose", purpose)
	if err != nil || f == nil {
		return nil, false
	}
	return f, true
}

func (c *Client) ListFiles(ctx context.Context, purpose string) []domain.File {
	var out []domain.File
	err := c.call(ctx, "list_files", func(ctx context.Context) error {
		var err error
		out, err = c.gw.ListFiles(ctx, purpose)
		return err
	}, "purpose", purpose)
	if err != nil || out == nil {
		return []domain.File{}
	}
	return out
}

func (c *Client) RetrieveFile(ctx context.Context, id domain.FileID) (*domain.File, bool) {
	var f *domain.File
	err := c.call(ctx, "retrieve_file", func(ctx context.Context) error {
		var err error
		f, err = c.gw.RetrieveFile(ctx, id)
		return err
	}, "file_id", id)
	if err != nil || f == nil {
		return nil, false
	}
	return f, true
}

func (c *Client) DeleteFile(ctx context.Context, id domain.FileID) bool {
	err := c.call(ctx, "delete_file", func(ctx context.Context) error {
		return c.gw.DeleteFile(ctx, id)
	}, "file_id", id)
	return err == nil
}
