package firestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

const DefaultCollection = "tg_sessions"

type Store struct {
	client     *firestore.Client
	collection string
}

// NewStore creates a Firestore store for projectID (firestore.project).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client, collection: DefaultCollection}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *Store) sessionRef(userID domain.UserID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(docID(userID))
}

func docID(userID domain.UserID) string {
	return strconv.FormatInt(int64(userID), 10)
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	UserID    int64     `firestore:"user_id"`
	ThreadID  string    `firestore:"thread_id"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func toDoc(e domain.SessionEntry) sessionDoc {
	return sessionDoc{
		UserID:    int64(e.UserID),
		ThreadID:  string(e.ThreadID),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

func fromDoc(d sessionDoc) domain.SessionEntry {
	return domain.SessionEntry{
		UserID:    domain.UserID(d.UserID),
		ThreadID:  domain.ThreadID(d.ThreadID),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) Get(ctx context.Context, userID domain.UserID) (domain.SessionEntry, bool, error) {
	snap, err := s.sessionRef(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.SessionEntry{}, false, nil
		}
		return domain.SessionEntry{}, false, fmt.Errorf("firestore Get: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("firestore Get decode: %w", err)
	}
	return fromDoc(doc), true, nil
}

// PutIfAbsent relies on Create failing with AlreadyExists.
func (s *Store) PutIfAbsent(ctx context.Context, entry domain.SessionEntry) (domain.SessionEntry, bool, error) {
	_, err := s.sessionRef(entry.UserID).Create(ctx, toDoc(entry))
	if err == nil {
		return entry, true, nil
	}
	if status.Code(err) != codes.AlreadyExists {
		return domain.SessionEntry{}, false, fmt.Errorf("firestore PutIfAbsent: %w", err)
	}

	existing, ok, err := s.Get(ctx, entry.UserID)
	if err != nil {
		return domain.SessionEntry{}, false, err
	}
	if !ok {
		return domain.SessionEntry{}, false, errors.New("firestore PutIfAbsent: binding vanished after conflict")
	}
	return existing, false, nil
}

func (s *Store) Put(ctx context.Context, entry domain.SessionEntry) error {
	if _, err := s.sessionRef(entry.UserID).Set(ctx, toDoc(entry)); err != nil {
		return fmt.Errorf("firestore Put: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID domain.UserID) error {
	if _, err := s.sessionRef(userID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore Delete: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionEntry, error) {
	q := s.sessionsCol().OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []domain.SessionEntry
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore List: %w", err)
		}

		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode sessionDoc: %w", err)
		}
		out = append(out, fromDoc(doc))
	}
	return out, nil
}

var (
	_ domain.SessionStore  = (*Store)(nil)
	_ domain.SessionLister = (*Store)(nil)
)
