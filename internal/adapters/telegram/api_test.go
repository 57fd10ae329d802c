package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/tg-assistant/internal/app/bot"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	requests []map[string]any
	methods  []string
	respond  func(method string, body map[string]any) (int, string)
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	method := parts[len(parts)-1]

	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.requests = append(f.requests, body)
	respond := f.respond
	f.mu.Unlock()

	status, payload := http.StatusOK, `{"ok":true,"result":true}`
	if respond != nil {
		status, payload = respond(method, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func newFakeClient(t *testing.T, f *fakeBotAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "TOKEN")
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	f := &fakeBotAPI{respond: func(method string, body map[string]any) (int, string) {
		return http.StatusOK, `{"ok":true,"result":[
			{"update_id":7,"message":{"message_id":1,"chat":{"id":5},"from":{"id":9},"text":"/start"}},
			{"update_id":9,"message":{"message_id":2,"chat":{"id":5},"from":{"id":9},"text":"hi"}}
		]}`
	}}
	c := newFakeClient(t, f)

	updates, next, err := c.GetUpdates(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, int64(10), next)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, float64(3), f.requests[0]["offset"])
	assert.Equal(t, "getUpdates", f.methods[0])
}

func TestCallReturnsRequestError(t *testing.T) {
	f := &fakeBotAPI{respond: func(string, map[string]any) (int, string) {
		return http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`
	}}
	c := newFakeClient(t, f)

	_, err := c.GetMe(context.Background())
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 401, reqErr.ErrorCode)
	assert.Equal(t, "getMe", reqErr.Method)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestSendReplyFallsBackToPlainText(t *testing.T) {
	f := &fakeBotAPI{respond: func(method string, body map[string]any) (int, string) {
		if body["parse_mode"] == "HTML" {
			return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unsupported start tag"}`
		}
		return http.StatusOK, `{"ok":true,"result":{}}`
	}}
	c := newFakeClient(t, f)

	err := c.SendReply(context.Background(), 5, bot.Reply{Text: "<b>broken", HTML: true})
	require.NoError(t, err)
	require.Len(t, f.requests, 2)
	assert.Equal(t, "HTML", f.requests[0]["parse_mode"])
	assert.Nil(t, f.requests[1]["parse_mode"])
	assert.Equal(t, "<b>broken", f.requests[1]["text"])
}

func TestSendReplyDoesNotRetryOtherErrors(t *testing.T) {
	f := &fakeBotAPI{respond: func(string, map[string]any) (int, string) {
		return http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	}}
	c := newFakeClient(t, f)

	err := c.SendReply(context.Background(), 5, bot.Reply{Text: "hi", HTML: true})
	assert.Error(t, err)
	assert.Len(t, f.requests, 1)
}

func TestSendReplyChunksLongText(t *testing.T) {
	f := &fakeBotAPI{}
	c := newFakeClient(t, f)

	long := strings.Repeat("ж", 8000)
	require.NoError(t, c.SendReply(context.Background(), 5, bot.Reply{Text: long}))

	require.Len(t, f.requests, 3)
	var total int
	for _, req := range f.requests {
		text := req["text"].(string)
		assert.LessOrEqual(t, utf8.RuneCountInString(text), maxChunk)
		assert.True(t, utf8.ValidString(text))
		total += utf8.RuneCountInString(text)
	}
	assert.Equal(t, 8000, total)
}

func TestChunkTextPrefersLineBreaks(t *testing.T) {
	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 5)
	assert.Equal(t, []string{"aaaaaaaa", "bbbbb"}, chunkText(text, 10))
	assert.Empty(t, chunkText("", 10))
}

func TestSetWebhookSendsSecret(t *testing.T) {
	f := &fakeBotAPI{}
	c := newFakeClient(t, f)

	require.NoError(t, c.SetWebhook(context.Background(), "https://example.com/telegram/webhook", "s3cret"))
	assert.Equal(t, "setWebhook", f.methods[0])
	assert.Equal(t, "s3cret", f.requests[0]["secret_token"])
}

func TestCallErrorOmitsToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(nil, base, "123456:SECRET-TOKEN")
	_, _, err := c.GetUpdates(context.Background(), 0, time.Second)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
	assert.Contains(t, err.Error(), "telegram getUpdates")

	_, err = c.GetMe(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}
