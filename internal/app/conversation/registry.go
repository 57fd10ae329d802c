package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

// ErrThreadUnavailable means the assistant service refused to create a thread.
var ErrThreadUnavailable = errors.New("thread could not be created")

// ThreadClient is the part of assistant.Client the registry needs.
type ThreadClient interface {
	CreateThread(ctx context.Context) (domain.ThreadID, bool)
	DeleteThread(ctx context.Context, thread domain.ThreadID) bool
}

// Registry binds each user to exactly one thread.
type Registry struct {
	client ThreadClient
	store  domain.SessionStore
	now    func() time.Time
	flight singleflight.Group
}

func NewRegistry(client ThreadClient, store domain.SessionStore) *Registry {
	return &Registry{
		client: client,
		store:  store,
		now:    time.Now,
	}
}

// Lookup reports the user's thread. A missing binding is not an error.
func (r *Registry) Lookup(ctx context.Context, user domain.UserID) (domain.ThreadID, bool, error) {
	entry, ok, err := r.store.Get(ctx, user)
	if err != nil {
		return "", false, fmt.Errorf("lookup session for user %d: %w", user, err)
	}
	if !ok || entry.ThreadID == "" {
		return "", false, nil
	}
	return entry.ThreadID, true, nil
}

// EnsureThread returns the user's thread, creating and binding one on first
// contact. Concurrent first contacts create a single thread.
func (r *Registry) EnsureThread(ctx context.Context, user domain.UserID) (domain.ThreadID, error) {
	if id, ok, err := r.Lookup(ctx, user); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	v, err, shared := r.flight.Do(strconv.FormatInt(int64(user), 10), func() (any, error) {
		return r.bindNew(ctx, user)
	})
	if err != nil {
		return "", err
	}
	if shared {
		observability.LoggerFromContext(ctx).Debug("thread creation coalesced", "user_id", user)
	}
	return v.(domain.ThreadID), nil
}

func (r *Registry) bindNew(ctx context.Context, user domain.UserID) (domain.ThreadID, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", user)

	// A flight that finished just before this one may already have bound a thread.
	if id, ok, err := r.Lookup(ctx, user); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	id, ok := r.client.CreateThread(ctx)
	if !ok || id == "" {
		return "", ErrThreadUnavailable
	}

	now := r.now()
	stored, inserted, err := r.store.PutIfAbsent(ctx, domain.SessionEntry{
		UserID:    user,
		ThreadID:  id,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		r.client.DeleteThread(ctx, id)
		return "", fmt.Errorf("bind thread for user %d: %w", user, err)
	}
	if !inserted {
		log.Info("another writer bound a thread first, dropping ours",
			"thread_id", id, "winner_thread_id", stored.ThreadID)
		r.client.DeleteThread(ctx, id)
		return stored.ThreadID, nil
	}

	log.Info("thread bound", "thread_id", id)
	return id, nil
}

// ResetThread always creates a new thread and replaces the binding.
func (r *Registry) ResetThread(ctx context.Context, user domain.UserID) (domain.ThreadID, error) {
	log := observability.LoggerFromContext(ctx).With("user_id", user)

	id, ok := r.client.CreateThread(ctx)
	if !ok || id == "" {
		return "", ErrThreadUnavailable
	}

	now := r.now()
	entry := domain.SessionEntry{UserID: user, ThreadID: id, CreatedAt: now, UpdatedAt: now}
	prev, found, err := r.store.Get(ctx, user)
	switch {
	case err != nil:
		log.Warn("failed to read previous binding", "error", err)
	case found:
		entry.CreatedAt = prev.CreatedAt
		log = log.With("previous_thread_id", prev.ThreadID)
	}

	if err := r.store.Put(ctx, entry); err != nil {
		return "", fmt.Errorf("rebind thread for user %d: %w", user, err)
	}
	log.Info("thread reset", "thread_id", id)
	return id, nil
}
