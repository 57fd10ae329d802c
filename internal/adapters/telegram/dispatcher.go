package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/PabloGalante/tg-assistant/internal/app/bot"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const defaultQueueSize = 16

var ErrQueueFull = errors.New("user queue is full")

// Handler is implemented by bot.Handler.
type Handler interface {
	Handle(ctx context.Context, upd bot.Update, n bot.Notifier) []bot.Reply
}

// Sender is implemented by Client.
type Sender interface {
	SendReply(ctx context.Context, chatID int64, r bot.Reply) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

type job struct {
	requestID string
	upd       bot.Update
}

type userQueue struct {
	jobs []job
}

// Dispatcher runs the updates of one user strictly in arrival order, one at a
// time. Different users are handled concurrently.
type Dispatcher struct {
	handler   Handler
	sender    Sender
	queueSize int

	base   context.Context
	mu     sync.Mutex
	queues map[int64]*userQueue
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher whose jobs run under base. Cancelling base
// aborts in-flight questions.
func NewDispatcher(base context.Context, handler Handler, sender Sender) *Dispatcher {
	if base == nil {
		base = context.Background()
	}
	return &Dispatcher{
		handler:   handler,
		sender:    sender,
		queueSize: defaultQueueSize,
		base:      base,
		queues:    make(map[int64]*userQueue),
	}
}

// Dispatch queues a raw Telegram update. Updates without a message are ignored.
func (d *Dispatcher) Dispatch(u Update) error {
	upd, ok := toBotUpdate(u)
	if !ok {
		return nil
	}
	return d.Enqueue(upd)
}

func (d *Dispatcher) Enqueue(upd bot.Update) error {
	key := upd.UserID
	if key == 0 {
		key = upd.ChatID
	}
	j := job{requestID: uuid.NewString(), upd: upd}

	d.mu.Lock()
	defer d.mu.Unlock()

	q, running := d.queues[key]
	if !running {
		q = &userQueue{}
		d.queues[key] = q
	}
	if len(q.jobs) >= d.queueSize {
		return ErrQueueFull
	}
	q.jobs = append(q.jobs, j)

	if !running {
		d.wg.Add(1)
		go d.drain(key, q)
	}
	return nil
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(key int64, q *userQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.jobs) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		d.mu.Unlock()

		d.run(j)
	}
}

func (d *Dispatcher) run(j job) {
	ctx := observability.WithRequestID(d.base, j.requestID)
	ctx = observability.WithUser(ctx, j.upd.UserID, j.upd.ChatID)
	log := observability.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			log.Error("update handler panicked", "panic", r)
		}
	}()

	n := &chatNotifier{sender: d.sender, chatID: j.upd.ChatID}
	for _, r := range d.handler.Handle(ctx, j.upd, n) {
		if err := d.sender.SendReply(ctx, j.upd.ChatID, r); err != nil {
			log.Error("failed to send reply", "error", err)
		}
	}
}

type chatNotifier struct {
	sender Sender
	chatID int64
}

func (n *chatNotifier) Typing(ctx context.Context) error {
	return n.sender.SendChatAction(ctx, n.chatID, "typing")
}

func (n *chatNotifier) Notify(ctx context.Context, r bot.Reply) error {
	return n.sender.SendReply(ctx, n.chatID, r)
}

func toBotUpdate(u Update) (bot.Update, bool) {
	m := u.Message
	if m == nil || m.Chat == nil {
		return bot.Update{}, false
	}
	if m.From != nil && m.From.IsBot {
		return bot.Update{}, false
	}
	upd := bot.Update{
		ChatID:   m.Chat.ID,
		Text:     m.Text,
		HasPhoto: len(m.Photo) > 0,
	}
	if m.From != nil {
		upd.UserID = m.From.ID
	}
	return upd, true
}
