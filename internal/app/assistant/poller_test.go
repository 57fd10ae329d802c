package assistant_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/domain"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return nil
}

func newTestPoller(src assistant.StepSource, rec *sleepRecorder) *assistant.Poller {
	p := assistant.NewPoller(src, 20, 2*time.Second)
	p.Sleep = rec.Sleep
	return p
}

func messageWith(id domain.MessageID, text string) *domain.Message {
	v := text
	return &domain.Message{
		ID:      id,
		Role:    domain.RoleAssistant,
		Content: []domain.Segment{{Kind: domain.SegmentKindText, Text: &v, Raw: v}},
	}
}

func TestPollExhaustsAttemptsAndFallsBack(t *testing.T) {
	src := &scriptedSource{}
	rec := &sleepRecorder{}
	p := newTestPoller(src, rec)

	callbacks := 0
	got := p.Poll(context.Background(), "t1", "r1", func(ctx context.Context, attempt int) error {
		callbacks++
		return nil
	})

	assert.Equal(t, assistant.FallbackAnswer, got)
	assert.Equal(t, 20, src.Listings())
	assert.Equal(t, 20, callbacks)
	// No sleep after the final attempt.
	require.Len(t, rec.calls, 19)
	assert.Equal(t, 2*time.Second, rec.calls[0])
}

func TestPollReturnsOnFirstNonBlankText(t *testing.T) {
	src := &scriptedSource{
		byList: map[int][]domain.RunStep{
			2: {{ID: "s0", Kind: domain.StepKindToolCalls}},
			3: {
				{ID: "s1", Kind: domain.StepKindMessageCreation, MessageID: "blank"},
				{ID: "s2", Kind: domain.StepKindMessageCreation, MessageID: "m1"},
				{ID: "s3", Kind: domain.StepKindMessageCreation, MessageID: "m2"},
			},
		},
		messages: map[domain.MessageID]*domain.Message{
			"blank": messageWith("blank", "   "),
			"m1":    messageWith("m1", "The answer"),
			"m2":    messageWith("m2", "Too late"),
		},
	}
	rec := &sleepRecorder{}

	got := newTestPoller(src, rec).Poll(context.Background(), "t1", "r1", nil)

	assert.Equal(t, "The answer", got)
	assert.Equal(t, 3, src.Listings())
	assert.Len(t, rec.calls, 2)
}

func TestPollReturnsLastCandidateOnExhaustion(t *testing.T) {
	src := &scriptedSource{
		byList: map[int][]domain.RunStep{
			1: {{ID: "s1", Kind: domain.StepKindMessageCreation, MessageID: "ws"}},
		},
		messages: map[domain.MessageID]*domain.Message{"ws": messageWith("ws", "\n")},
	}
	p := newTestPoller(src, &sleepRecorder{})
	p.MaxAttempts = 3

	assert.Equal(t, "\n", p.Poll(context.Background(), "t1", "r1", nil))
	assert.Equal(t, 3, src.Listings())
}

func TestPollSwallowsCallbackFailures(t *testing.T) {
	src := &scriptedSource{
		byList: map[int][]domain.RunStep{
			2: {{ID: "s1", Kind: domain.StepKindMessageCreation, MessageID: "m1"}},
		},
		messages: map[domain.MessageID]*domain.Message{"m1": messageWith("m1", "ok")},
	}
	p := newTestPoller(src, &sleepRecorder{})

	attempts := 0
	got := p.Poll(context.Background(), "t1", "r1", func(ctx context.Context, attempt int) error {
		attempts++
		if attempt == 1 {
			return errors.New("typing failed")
		}
		panic("typing exploded")
	})

	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, attempts)
}

func TestPollStopsWhenContextEnds(t *testing.T) {
	src := &scriptedSource{}
	p := assistant.NewPoller(src, 20, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, assistant.FallbackAnswer, p.Poll(ctx, "t1", "r1", nil))
	assert.Equal(t, 1, src.Listings())
}

func TestPollWithClientTreatsGatewayErrorsAsNoSteps(t *testing.T) {
	c := newClient(&stubGateway{})
	p := assistant.NewPoller(c, 2, 0)

	assert.Equal(t, assistant.FallbackAnswer, p.Poll(context.Background(), "t1", "r1", nil))
}
