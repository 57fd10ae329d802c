package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/adapters/openai"
	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/app/conversation"
	"github.com/PabloGalante/tg-assistant/internal/domain"
)

func TestAnswerStopsWhenSendFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	thread, err := f.registry.EnsureThread(ctx, 1)
	require.NoError(t, err)

	f.gw.FailOn(openai.OpCreateMessage, errors.New("rate limited"))
	orch := conversation.NewOrchestrator(f.client, f.poller, nil)

	assert.Equal(t, conversation.SendFailedReply, orch.Answer(ctx, thread, "hi", nil))
	assert.Equal(t, 0, f.gw.Calls(openai.OpCreateRun))
}

func TestAnswerStopsWhenRunFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	thread, err := f.registry.EnsureThread(ctx, 1)
	require.NoError(t, err)

	f.gw.FailOn(openai.OpCreateRun, errors.New("assistant missing"))
	orch := conversation.NewOrchestrator(f.client, f.poller, nil)

	assert.Equal(t, conversation.RunFailedReply, orch.Answer(ctx, thread, "hi", nil))
	assert.Equal(t, 0, f.gw.Calls(openai.OpListRunSteps))
}

func TestAnswerPollsUntilReply(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gw.StepsUntilReply = 3
	f.gw.Reply = func(string) string { return "done" }
	thread, err := f.registry.EnsureThread(ctx, 1)
	require.NoError(t, err)

	orch := conversation.NewOrchestrator(f.client, f.poller, []domain.ToolDescriptor{{Type: "retrieval"}})
	attempts := 0
	got := orch.Answer(ctx, thread, "hi", func(context.Context, int) error {
		attempts++
		return nil
	})

	assert.Equal(t, "done", got)
	assert.Equal(t, 3, f.gw.Calls(openai.OpListRunSteps))
	assert.Equal(t, 3, attempts)
}

func TestAnswerReturnsFallbackWhenRunNeverReplies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gw.StepsUntilReply = 100
	thread, err := f.registry.EnsureThread(ctx, 1)
	require.NoError(t, err)

	orch := conversation.NewOrchestrator(f.client, f.poller, nil)
	assert.Equal(t, assistant.FallbackAnswer, orch.Answer(ctx, thread, "hi", nil))
	assert.Equal(t, f.poller.MaxAttempts, f.gw.Calls(openai.OpListRunSteps))
}
