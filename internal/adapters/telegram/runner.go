package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/PabloGalante/tg-assistant/internal/observability"
)

// Poller is implemented by Client.
type Poller interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error)
	DeleteWebhook(ctx context.Context) error
}

// Runner feeds long-polled updates into a Dispatcher.
type Runner struct {
	api         Poller
	dispatcher  *Dispatcher
	pollTimeout time.Duration
	retryDelay  time.Duration
}

func NewRunner(api Poller, dispatcher *Dispatcher, pollTimeout time.Duration) *Runner {
	return &Runner{
		api:         api,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeout,
		retryDelay:  time.Second,
	}
}

// Run polls until ctx is cancelled, then waits for queued updates to finish.
func (r *Runner) Run(ctx context.Context) error {
	log := observability.Logger().With("component", "telegram_runner")

	// getUpdates is refused while a webhook is registered.
	if err := r.api.DeleteWebhook(ctx); err != nil {
		log.Warn("failed to delete webhook", "error", err)
	}

	log.Info("polling started", "timeout", r.pollTimeout.String())
	defer r.dispatcher.Wait()

	var offset int64
	for {
		if ctx.Err() != nil {
			log.Info("polling stopped")
			return nil
		}

		updates, next, err := r.api.GetUpdates(ctx, offset, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("polling stopped")
				return nil
			}
			if isPollTimeout(err) {
				continue
			}
			log.Warn("get updates failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(r.retryDelay):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			if err := r.dispatcher.Dispatch(u); err != nil {
				if errors.Is(err, ErrQueueFull) {
					log.Warn("update dropped", "update_id", u.UpdateID, "error", err)
					continue
				}
				log.Error("dispatch failed", "update_id", u.UpdateID, "error", err)
			}
		}
	}
}
