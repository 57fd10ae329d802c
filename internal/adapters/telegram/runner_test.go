package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPoller struct {
	mu      sync.Mutex
	batches [][]Update
	errs    []error
	offsets []int64
	cancel  context.CancelFunc
	deleted bool
}

func (p *scriptedPoller) DeleteWebhook(ctx context.Context) error {
	p.deleted = true
	return nil
}

func (p *scriptedPoller) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offsets = append(p.offsets, offset)

	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, offset, err
	}
	if len(p.batches) == 0 {
		p.cancel()
		return nil, offset, ctx.Err()
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	next := offset
	for _, u := range batch {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return batch, next, nil
}

func TestRunnerDispatchesAndTracksOffset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &scriptedPoller{
		cancel: cancel,
		errs:   []error{context.DeadlineExceeded, errors.New("bad gateway")},
		batches: [][]Update{
			{{UpdateID: 4, Message: &Message{Chat: &Chat{ID: 1}, From: &User{ID: 1}, Text: "one"}}},
			{{UpdateID: 5, Message: &Message{Chat: &Chat{ID: 1}, From: &User{ID: 1}, Text: "two"}}},
		},
	}
	h := newGatedHandler()
	close(h.release)
	s := &recordingSender{}

	r := NewRunner(p, NewDispatcher(ctx, h, s), time.Second)
	r.retryDelay = time.Millisecond

	require.NoError(t, r.Run(ctx))

	assert.True(t, p.deleted)
	assert.Equal(t, []int64{0, 0, 0, 5, 6}, p.offsets)
	assert.Equal(t, []string{"re:one", "re:two"}, s.Replies(1))
}
