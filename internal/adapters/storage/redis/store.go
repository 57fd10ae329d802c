// Package redis stores user → thread bindings in Redis. Each binding is a JSON
// value under <prefix>:session:<user>; a sorted set scored by update time
// backs List.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PabloGalante/tg-assistant/internal/domain"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

type Store struct {
	rdb    *redis.Client
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewStore connects and pings the server.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewStoreFromClient(rdb, opts.Prefix), nil
}

func NewStoreFromClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "tg-assistant"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) sessionKey(userID domain.UserID) string {
	return s.prefix + ":session:" + strconv.FormatInt(int64(userID), 10)
}

func (s *Store) indexKey() string {
	return s.prefix + ":sessions"
}

type record struct {
	UserID    int64     `json:"user_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func encode(e domain.SessionEntry) ([]byte, error) {
	return json.Marshal(record{
		UserID:    int64(e.UserID),
		ThreadID:  string(e.ThreadID),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	})
}

func decode(raw []byte) (domain.SessionEntry, error) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.SessionEntry{}, err
	}
	return domain.SessionEntry{
		UserID:    domain.UserID(r.UserID),
		ThreadID:  domain.ThreadID(r.ThreadID),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *Store) Get(ctx context.Context, userID domain.UserID) (domain.SessionEntry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionEntry{}, false, nil
	}
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("redis get session: %w", err)
	}
	entry, err := decode(raw)
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("redis decode session: %w", err)
	}
	return entry, true, nil
}

// PutIfAbsent uses SETNX so concurrent writers across processes agree on one binding.
func (s *Store) PutIfAbsent(ctx context.Context, entry domain.SessionEntry) (domain.SessionEntry, bool, error) {
	raw, err := encode(entry)
	if err != nil {
		return domain.SessionEntry{}, false, err
	}

	inserted, err := s.rdb.SetNX(ctx, s.sessionKey(entry.UserID), raw, 0).Result()
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("redis setnx session: %w", err)
	}
	if inserted {
		// The binding is stored; a missing index entry only hides it from List
		// until the next Put re-indexes it.
		if err := s.index(ctx, entry); err != nil {
			observability.LoggerFromContext(ctx).Warn("failed to index session",
				"user_id", entry.UserID,
				"thread_id", entry.ThreadID,
				"error", err,
			)
		}
		return entry, true, nil
	}

	existing, ok, err := s.Get(ctx, entry.UserID)
	if err != nil {
		return domain.SessionEntry{}, false, err
	}
	if !ok {
		return domain.SessionEntry{}, false, errors.New("redis PutIfAbsent: binding vanished after conflict")
	}
	return existing, false, nil
}

func (s *Store) Put(ctx context.Context, entry domain.SessionEntry) error {
	raw, err := encode(entry)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.sessionKey(entry.UserID), raw, 0)
		p.ZAdd(ctx, s.indexKey(), indexMember(entry))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID domain.UserID) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.sessionKey(userID))
		p.ZRem(ctx, s.indexKey(), strconv.FormatInt(int64(userID), 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	members, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, s.prefix+":session:"+m)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget sessions: %w", err)
	}

	out := make([]domain.SessionEntry, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			// Deleted between ZREVRANGE and MGET.
			continue
		}
		entry, err := decode([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("redis decode session: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) index(ctx context.Context, entry domain.SessionEntry) error {
	if err := s.rdb.ZAdd(ctx, s.indexKey(), indexMember(entry)).Err(); err != nil {
		return fmt.Errorf("redis index session: %w", err)
	}
	return nil
}

func indexMember(entry domain.SessionEntry) redis.Z {
	return redis.Z{
		Score:  float64(entry.UpdatedAt.UnixMilli()),
		Member: strconv.FormatInt(int64(entry.UserID), 10),
	}
}

var (
	_ domain.SessionStore  = (*Store)(nil)
	_ domain.SessionLister = (*Store)(nil)
)
