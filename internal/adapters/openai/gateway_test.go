package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// fakeAPI embeds the interface so only the methods a test needs are implemented.
type fakeAPI struct {
	AssistantsAPI

	steps      openai.RunStepList
	message    openai.Message
	runReq     openai.RunRequest
	messageReq openai.MessageRequest
	err        error
}

func (f *fakeAPI) ListRunSteps(ctx context.Context, threadID, runID string, p openai.Pagination) (openai.RunStepList, error) {
	return f.steps, f.err
}

func (f *fakeAPI) RetrieveMessage(ctx context.Context, threadID, messageID string) (openai.Message, error) {
	return f.message, f.err
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error) {
	f.runReq = req
	if f.err != nil {
		return openai.Run{}, f.err
	}
	return openai.Run{ID: "r1", ThreadID: threadID, AssistantID: req.AssistantID, Status: openai.RunStatusQueued}, nil
}

func (f *fakeAPI) CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error) {
	f.messageReq = req
	if f.err != nil {
		return openai.Message{}, f.err
	}
	return openai.Message{ID: "m1", ThreadID: threadID, Role: req.Role}, nil
}

func (f *fakeAPI) CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error) {
	if f.err != nil {
		return openai.Thread{}, f.err
	}
	return openai.Thread{ID: "t1", CreatedAt: 1700000000}, nil
}

func newTestGateway(t *testing.T, api *fakeAPI) *Gateway {
	t.Helper()
	g, err := New(api)
	require.NoError(t, err)
	return g
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = NewFromOptions(Options{})
	assert.Error(t, err)
}

func TestListRunStepsKeepsOrderAndDecodesKinds(t *testing.T) {
	api := &fakeAPI{steps: openai.RunStepList{RunSteps: []openai.RunStep{
		{ID: "s1", StepDetails: openai.StepDetails{Type: openai.RunStepTypeToolCalls}},
		{ID: "s2", StepDetails: openai.StepDetails{
			Type:            openai.RunStepTypeMessageCreation,
			MessageCreation: &openai.StepDetailsMessageCreation{MessageID: "m1"},
		}},
		{ID: "s3", StepDetails: openai.StepDetails{Type: "something_new"}},
	}}}
	g := newTestGateway(t, api)

	steps, err := g.ListRunSteps(context.Background(), "t1", "r1")
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, domain.StepKindToolCalls, steps[0].Kind)
	assert.Equal(t, domain.StepKindMessageCreation, steps[1].Kind)
	assert.Equal(t, domain.MessageID("m1"), steps[1].MessageID)
	assert.Equal(t, domain.StepKindUnknown, steps[2].Kind)
}

func TestListRunStepsRejectsMessageCreationWithoutID(t *testing.T) {
	api := &fakeAPI{steps: openai.RunStepList{RunSteps: []openai.RunStep{
		{ID: "s1", StepDetails: openai.StepDetails{Type: openai.RunStepTypeMessageCreation}},
	}}}
	g := newTestGateway(t, api)

	_, err := g.ListRunSteps(context.Background(), "t1", "r1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnexpectedShape))
}

func TestRetrieveMessageDecodesSegments(t *testing.T) {
	api := &fakeAPI{message: openai.Message{
		ID:   "m1",
		Role: "assistant",
		Content: []openai.MessageContent{
			{Type: "text", Text: &openai.MessageText{Value: "Hello "}},
			{Type: "image_file", ImageFile: &openai.ImageFile{FileID: "file-1"}},
			{Type: "text"},
		},
	}}
	g := newTestGateway(t, api)

	msg, err := g.RetrieveMessage(context.Background(), "t1", "m1")
	require.NoError(t, err)
	require.Len(t, msg.Content, 3)

	require.NotNil(t, msg.Content[0].Text)
	assert.Equal(t, "Hello ", *msg.Content[0].Text)
	assert.Equal(t, domain.SegmentKindImageFile, msg.Content[1].Kind)
	assert.Nil(t, msg.Content[1].Text)
	assert.Equal(t, "[image_file:file-1]", msg.Content[1].Raw)
	assert.Equal(t, domain.SegmentKindOther, msg.Content[2].Kind)
	assert.NotEmpty(t, msg.Content[2].Raw)
}

func TestRetrieveMessageRejectsUnknownRole(t *testing.T) {
	g := newTestGateway(t, &fakeAPI{message: openai.Message{ID: "m1", Role: "system"}})

	_, err := g.RetrieveMessage(context.Background(), "t1", "m1")
	assert.True(t, errors.Is(err, domain.ErrUnexpectedShape))
}

func TestCreateRunAttachesToolsOnlyWhenGiven(t *testing.T) {
	api := &fakeAPI{}
	g := newTestGateway(t, api)

	run, err := g.CreateRun(context.Background(), "t1", "asst_1", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.RunID("r1"), run.ID)
	assert.Equal(t, "asst_1", api.runReq.AssistantID)
	assert.Nil(t, api.runReq.Tools)

	_, err = g.CreateRun(context.Background(), "t1", "asst_1", []domain.ToolDescriptor{{Type: "code_interpreter"}})
	require.NoError(t, err)
	require.Len(t, api.runReq.Tools, 1)
	assert.Equal(t, openai.ToolType("code_interpreter"), api.runReq.Tools[0].Type)
}

func TestCreateMessageSendsRole(t *testing.T) {
	api := &fakeAPI{}
	g := newTestGateway(t, api)

	msg, err := g.CreateMessage(context.Background(), "t1", domain.RoleUser, "hi")
	require.NoError(t, err)
	assert.Equal(t, "user", api.messageReq.Role)
	assert.Equal(t, "hi", api.messageReq.Content)
	assert.Equal(t, domain.RoleUser, msg.Role)
}

func TestErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")
	g := newTestGateway(t, &fakeAPI{err: boom})

	_, err := g.CreateThread(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}
