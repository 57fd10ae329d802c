package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/app/bot"
)

type recordingSender struct {
	mu      sync.Mutex
	replies map[int64][]string
	actions int
}

func (s *recordingSender) SendReply(ctx context.Context, chatID int64, r bot.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replies == nil {
		s.replies = map[int64][]string{}
	}
	s.replies[chatID] = append(s.replies[chatID], r.Text)
	return nil
}

func (s *recordingSender) SendChatAction(ctx context.Context, chatID int64, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions++
	return nil
}

func (s *recordingSender) Replies(chatID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.replies[chatID]...)
}

// gatedHandler blocks updates whose text is "block" until release is closed.
type gatedHandler struct {
	mu      sync.Mutex
	active  map[int64]int
	overlap bool
	started chan string
	release chan struct{}
	panicOn string
}

func newGatedHandler() *gatedHandler {
	return &gatedHandler{
		active:  map[int64]int{},
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (h *gatedHandler) Handle(ctx context.Context, upd bot.Update, n bot.Notifier) []bot.Reply {
	h.mu.Lock()
	h.active[upd.UserID]++
	if h.active[upd.UserID] > 1 {
		h.overlap = true
	}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.active[upd.UserID]--
		h.mu.Unlock()
	}()

	h.started <- upd.Text
	if upd.Text == h.panicOn {
		panic("handler bug")
	}
	if upd.Text == "block" {
		<-h.release
	}
	_ = n.Typing(ctx)
	return []bot.Reply{{Text: "re:" + upd.Text}}
}

func waitStarted(t *testing.T, h *gatedHandler) string {
	t.Helper()
	select {
	case s := <-h.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not start")
		return ""
	}
}

func TestDispatcherSerializesPerUser(t *testing.T) {
	h := newGatedHandler()
	s := &recordingSender{}
	d := NewDispatcher(context.Background(), h, s)

	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, ChatID: 1, Text: "block"}))
	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, ChatID: 1, Text: "second"}))
	assert.Equal(t, "block", waitStarted(t, h))

	// Another user is not held up by user 1.
	require.NoError(t, d.Enqueue(bot.Update{UserID: 2, ChatID: 2, Text: "other"}))
	assert.Equal(t, "other", waitStarted(t, h))

	select {
	case s := <-h.started:
		t.Fatalf("second update for user 1 started early: %s", s)
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	assert.Equal(t, "second", waitStarted(t, h))
	d.Wait()

	assert.False(t, h.overlap)
	assert.Equal(t, []string{"re:block", "re:second"}, s.Replies(1))
	assert.Equal(t, []string{"re:other"}, s.Replies(2))
	assert.Equal(t, 3, s.actions)
}

func TestDispatcherQueueLimit(t *testing.T) {
	h := newGatedHandler()
	d := NewDispatcher(context.Background(), h, &recordingSender{})
	d.queueSize = 2

	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, Text: "block"}))
	waitStarted(t, h)
	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, Text: "a"}))
	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, Text: "b"}))
	assert.True(t, errors.Is(d.Enqueue(bot.Update{UserID: 1, Text: "c"}), ErrQueueFull))

	close(h.release)
	d.Wait()
}

func TestDispatcherSurvivesHandlerPanic(t *testing.T) {
	h := newGatedHandler()
	h.panicOn = "boom"
	s := &recordingSender{}
	d := NewDispatcher(context.Background(), h, s)

	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, ChatID: 1, Text: "boom"}))
	require.NoError(t, d.Enqueue(bot.Update{UserID: 1, ChatID: 1, Text: "after"}))
	d.Wait()

	assert.Equal(t, []string{"re:after"}, s.Replies(1))
}

func TestToBotUpdate(t *testing.T) {
	_, ok := toBotUpdate(Update{UpdateID: 1})
	assert.False(t, ok)

	_, ok = toBotUpdate(Update{Message: &Message{Chat: &Chat{ID: 1}, From: &User{ID: 2, IsBot: true}}})
	assert.False(t, ok)

	upd, ok := toBotUpdate(Update{Message: &Message{
		Chat:    &Chat{ID: 10},
		From:    &User{ID: 20},
		Caption: "look",
		Photo:   []PhotoSize{{FileID: "p1"}},
	}})
	require.True(t, ok)
	assert.Equal(t, bot.Update{UserID: 20, ChatID: 10, HasPhoto: true}, upd)
}
