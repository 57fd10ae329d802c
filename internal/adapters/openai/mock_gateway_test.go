package openai_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/adapters/openai"
	"github.com/PabloGalante/tg-assistant/internal/domain"
)

func TestMockGatewayProducesReplyAfterConfiguredListings(t *testing.T) {
	ctx := context.Background()
	g := openai.NewMockGateway()
	g.StepsUntilReply = 2
	g.Reply = func(q string) string { return "echo: " + q }

	thread, err := g.CreateThread(ctx)
	require.NoError(t, err)
	_, err = g.CreateMessage(ctx, thread.ID, domain.RoleUser, "ping")
	require.NoError(t, err)
	run, err := g.CreateRun(ctx, thread.ID, "asst", nil)
	require.NoError(t, err)

	steps, err := g.ListRunSteps(ctx, thread.ID, run.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = g.ListRunSteps(ctx, thread.ID, run.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, domain.StepKindMessageCreation, steps[0].Kind)

	msg, err := g.RetrieveMessage(ctx, thread.ID, steps[0].MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, msg.Role)
	assert.Equal(t, "echo: ping", msg.Content[0].Raw)

	got, err := g.RetrieveRun(ctx, thread.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, g.Calls(openai.OpListRunSteps))
}

func TestMockGatewayFailOn(t *testing.T) {
	g := openai.NewMockGateway()
	boom := errors.New("quota")
	g.FailOn(openai.OpCreateThread, boom)

	_, err := g.CreateThread(context.Background())
	assert.ErrorIs(t, err, boom)

	g.FailOn(openai.OpCreateThread, nil)
	_, err = g.CreateThread(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, g.Calls(openai.OpCreateThread))
}
