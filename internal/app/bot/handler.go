// Package bot routes chat commands to the conversation service and renders
// the replies. It knows nothing about the transport that delivers them.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/PabloGalante/tg-assistant/internal/app/conversation"
	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const (
	helpText = "Available commands:\n" +
		"/start - start working with the bot\n" +
		"/ask &lt;question&gt; - ask the assistant\n" +
		"/reset - start a new dialog"

	startFailedText   = "Error: could not create a thread. Try again later."
	resetText         = "Starting a new dialog. Ask a question with /ask"
	resetFailedText   = "Error: could not create a new thread. Try again later."
	noThreadText      = "Send /start first to create a thread."
	emptyQuestionText = "Please enter a question after /ask."
	ThinkingText      = "One second, thinking…"
	internalErrorText = "Something went wrong. Try again later."
	unknownText       = "Unknown command. Use /help for the list of commands."
	bareText          = "You sent a message without a command. Use /ask <question> or see /help."
	photoText         = "You sent a photo, but I can't process images yet."
)

var lineBreakTag = regexp.MustCompile(`(?i)<br\s*/?>`)

type Update struct {
	UserID   int64
	ChatID   int64
	Text     string
	HasPhoto bool
}

type Reply struct {
	Text string
	// HTML marks Text as Telegram HTML markup.
	HTML bool
}

// Notifier lets the handler talk to the user while a question is running.
type Notifier interface {
	Typing(ctx context.Context) error
	Notify(ctx context.Context, r Reply) error
}

// Sessions is implemented by conversation.Service.
type Sessions interface {
	StartSession(ctx context.Context, user domain.UserID) (*conversation.StartSessionOutput, error)
	ResetSession(ctx context.Context, user domain.UserID) (*conversation.StartSessionOutput, error)
	HasSession(ctx context.Context, user domain.UserID) (bool, error)
	Ask(ctx context.Context, in conversation.AskInput) (*conversation.AskOutput, error)
}

type Handler struct {
	sessions Sessions
	username string
}

type Option func(*Handler)

// WithUsername makes the handler ignore commands addressed to other bots,
// such as "/start@OtherBot" in a group chat.
func WithUsername(username string) Option {
	return func(h *Handler) {
		h.username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	}
}

func NewHandler(sessions Sessions, opts ...Option) *Handler {
	h := &Handler{sessions: sessions}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle produces the replies for one update. n may be nil.
func (h *Handler) Handle(ctx context.Context, upd Update, n Notifier) []Reply {
	ctx = observability.WithUser(ctx, upd.UserID, upd.ChatID)
	log := observability.LoggerFromContext(ctx)

	if upd.HasPhoto {
		return []Reply{{Text: photoText}}
	}

	text := strings.TrimSpace(upd.Text)
	if text == "" {
		return nil
	}
	if !strings.HasPrefix(text, "/") {
		return []Reply{{Text: bareText}}
	}

	cmd, rest := splitCommand(text)
	if !h.addressedToMe(cmd) {
		log.Debug("command addressed to another bot", "command", cmd)
		return nil
	}
	name := strings.TrimPrefix(normalizeSlashCommand(cmd), "/")
	log.Debug("command received", "command", name)

	user := domain.UserID(upd.UserID)
	switch name {
	case "start":
		return h.start(ctx, user)
	case "help":
		return []Reply{{Text: helpText, HTML: true}}
	case "reset":
		return h.reset(ctx, user)
	case "ask":
		return h.ask(ctx, user, rest, n)
	default:
		return []Reply{{Text: unknownText}}
	}
}

func (h *Handler) start(ctx context.Context, user domain.UserID) []Reply {
	out, err := h.sessions.StartSession(ctx, user)
	if err != nil {
		return []Reply{{Text: startFailedText}}
	}
	return []Reply{{Text: greeting(out.ThreadID), HTML: true}}
}

func (h *Handler) reset(ctx context.Context, user domain.UserID) []Reply {
	if _, err := h.sessions.ResetSession(ctx, user); err != nil {
		return []Reply{{Text: resetFailedText}}
	}
	return []Reply{{Text: resetText}}
}

func (h *Handler) ask(ctx context.Context, user domain.UserID, question string, n Notifier) []Reply {
	log := observability.LoggerFromContext(ctx)

	in := conversation.AskInput{UserID: user, Question: question}
	if n != nil {
		in.OnAttempt = func(ctx context.Context, attempt int) error {
			return n.Typing(ctx)
		}
	}

	ok, err := h.sessions.HasSession(ctx, user)
	switch {
	case err != nil:
		log.Error("session lookup failed", "error", err)
		return []Reply{{Text: internalErrorText}}
	case !ok:
		return []Reply{{Text: noThreadText}}
	case strings.TrimSpace(question) == "":
		return []Reply{{Text: emptyQuestionText}}
	}

	if n != nil {
		if err := n.Notify(ctx, Reply{Text: ThinkingText}); err != nil {
			log.Warn("failed to send interim notice", "error", err)
		}
	}

	out, err := h.sessions.Ask(ctx, in)
	switch {
	case errors.Is(err, conversation.ErrNoThread):
		return []Reply{{Text: noThreadText}}
	case errors.Is(err, conversation.ErrEmptyQuestion):
		return []Reply{{Text: emptyQuestionText}}
	case err != nil:
		log.Error("ask failed", "error", err)
		return []Reply{{Text: internalErrorText}}
	}
	return []Reply{{Text: FormatAnswer(out.Answer)}}
}

func greeting(thread domain.ThreadID) string {
	return fmt.Sprintf("Hi, I'm your assistant!\n"+
		"Your thread ID: <code>%s</code>\n"+
		"Ask a question with /ask &lt;your question&gt;\n"+
		"/help shows all available commands.", html.EscapeString(string(thread)))
}

// FormatAnswer turns <br> markup into newlines and wraps the answer.
func FormatAnswer(answer string) string {
	answer = lineBreakTag.ReplaceAllString(answer, "\n")
	return "Assistant's answer:\n\n" + answer +
		"\n\nAsk a new question with /ask or restart the dialog with /reset."
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// addressedToMe reports whether cmd has no @suffix or names this bot.
func (h *Handler) addressedToMe(cmd string) bool {
	at := strings.IndexByte(cmd, '@')
	if at < 0 || h.username == "" {
		return true
	}
	return strings.EqualFold(cmd[at+1:], h.username)
}

// normalizeSlashCommand lowercases "/Cmd@BotName" to "/cmd".
func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
