package syncstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config carries the entity-specific hooks for a Store. One parametric
// store serves every collection; per-entity behavior enters only here.
type Config[T Entity] struct {
	// Collection is the gateway collection name, e.g. "tasks".
	Collection string
	// Actor returns the current identity id used for ownership stamping.
	Actor func() string
	// Stamp injects id, owner and timestamps into an optimistic record.
	Stamp func(record T, id, owner string, now time.Time) T
	// Merge applies a partial payload to a record, refreshing UpdatedAt.
	Merge func(record T, patch Patch, now time.Time) T
	// TempID generates placeholder ids. Defaults to NewTempID.
	TempID func() string
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Store owns the local collection for one entity type. All collection
// mutations happen under the mutex; gateway calls do not.
//
// Overlapping mutations on the same id are not serialized: a second
// call's optimistic apply and rollback operate on whatever state existed
// when it started. Callers that need per-id ordering must await each
// mutation before issuing the next.
type Store[T Entity] struct {
	cfg Config[T]
	gw  Gateway[T]

	mu          sync.Mutex
	items       []T
	fetchErr    error
	closed      bool
	unsubscribe func()
}

// New constructs a store and subscribes it to the gateway push channel.
// The subscription is released by Close.
func New[T Entity](gw Gateway[T], cfg Config[T]) (*Store[T], error) {
	if gw == nil {
		return nil, errors.New("syncstore: gateway required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("syncstore: collection name required")
	}
	if cfg.Stamp == nil || cfg.Merge == nil {
		return nil, errors.New("syncstore: stamp and merge hooks required")
	}
	if cfg.Actor == nil {
		cfg.Actor = func() string { return "" }
	}
	if cfg.TempID == nil {
		cfg.TempID = NewTempID
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Store[T]{cfg: cfg, gw: gw}
	unsub, err := gw.Subscribe(s.ingest)
	if err != nil {
		return nil, fmt.Errorf("syncstore: subscribe %s: %w", cfg.Collection, err)
	}
	s.unsubscribe = unsub
	return s, nil
}

// Items returns a snapshot of the collection, newest first.
func (s *Store[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the entity with the given id, if present.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Len returns the current collection size.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// FetchErr returns the last fetch failure, cleared by a successful fetch.
// Read failures are reported here rather than clearing displayed data.
func (s *Store[T]) FetchErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchErr
}

// FetchAll replaces the local collection with the gateway result set for
// the filter. On failure the previous collection is left untouched and
// the error is recorded in FetchErr.
func (s *Store[T]) FetchAll(ctx context.Context, filter Filter) error {
	rows, err := s.gw.Select(ctx, filter)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err != nil {
		s.fetchErr = fmt.Errorf("%w: %v", ErrFetchFailed, err)
		s.cfg.Logger.Warn("fetch failed, keeping stale collection",
			slog.String("collection", s.cfg.Collection), slog.Any("error", err))
		return s.fetchErr
	}
	s.items = rows
	s.fetchErr = nil
	return nil
}

// Create prepends an optimistic record with a placeholder id, issues the
// remote insert, and reconciles the placeholder with the server record.
// On failure the placeholder is removed before the error is returned, so
// the collection never retains an orphaned temp entry.
//
// Authorization is the caller's concern; the store trusts that the actor
// already passed a capability check.
func (s *Store[T]) Create(ctx context.Context, payload T) (T, error) {
	var zero T
	now := s.cfg.Clock()
	actor := s.cfg.Actor()
	tempID := s.cfg.TempID()
	optimistic := s.cfg.Stamp(payload, tempID, actor, now)
	// The placeholder id never leaves the process: the dispatched record
	// carries an empty id so the server assigns the real one.
	outbound := s.cfg.Stamp(payload, "", actor, now)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrClosed
	}
	s.items = append([]T{optimistic}, s.items...)
	s.mu.Unlock()

	confirmed, err := s.gw.Insert(ctx, outbound)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.closed {
			if i := s.indexOf(tempID); i >= 0 {
				s.removeAt(i)
			}
		}
		return zero, fmt.Errorf("%w: %v", ErrMutationFailed, err)
	}
	if s.closed {
		return confirmed, nil
	}
	ti := s.indexOf(tempID)
	if ti < 0 {
		// Placeholder already reconciled or removed. If the server record
		// is absent too (insert echo not yet delivered), prepend it.
		if s.indexOf(confirmed.EntityID()) < 0 {
			s.items = append([]T{confirmed}, s.items...)
		}
		return confirmed, nil
	}
	if ci := s.indexOf(confirmed.EntityID()); ci >= 0 && ci != ti {
		// Insert echo landed before the response; drop the placeholder.
		s.removeAt(ti)
		return confirmed, nil
	}
	s.items[ti] = confirmed
	return confirmed, nil
}

// Update applies a partial payload optimistically and issues the remote
// update. On failure the exact pre-update snapshot is restored. Returns
// ErrNotFound without a network call when the id is absent locally.
func (s *Store[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	var zero T

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snapshot := s.items[idx]
	s.items[idx] = s.cfg.Merge(snapshot, patch, s.cfg.Clock())
	s.mu.Unlock()

	confirmed, err := s.gw.Update(ctx, id, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if !s.closed {
			if i := s.indexOf(id); i >= 0 {
				s.items[i] = snapshot
			}
		}
		return zero, fmt.Errorf("%w: %v", ErrMutationFailed, err)
	}
	if !s.closed {
		if i := s.indexOf(id); i >= 0 {
			s.items[i] = confirmed
		}
	}
	return confirmed, nil
}

// Delete removes the entity optimistically and issues the remote delete.
// On failure the entity is reinserted at its original index. Returns
// ErrNotFound without a network call when the id is absent locally.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.items[idx]
	s.removeAt(idx)
	s.mu.Unlock()

	if err := s.gw.Delete(ctx, id); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed && s.indexOf(id) < 0 {
			pos := idx
			if pos > len(s.items) {
				pos = len(s.items)
			}
			s.items = append(s.items[:pos], append([]T{removed}, s.items[pos:]...)...)
		}
		return fmt.Errorf("%w: %v", ErrMutationFailed, err)
	}
	return nil
}

// ingest merges a remote change event into the collection. Duplicate
// delivery of the identical event is a no-op the second time.
func (s *Store[T]) ingest(typ EventType, record T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	id := record.EntityID()
	switch typ {
	case EventInsert:
		// Echo suppression: a confirmed local create already holds the id.
		if s.indexOf(id) >= 0 {
			return
		}
		s.items = append([]T{record}, s.items...)
	case EventUpdate:
		if i := s.indexOf(id); i >= 0 {
			s.items[i] = record
		}
	case EventDelete:
		if i := s.indexOf(id); i >= 0 {
			s.removeAt(i)
		}
	default:
		s.cfg.Logger.Warn("unknown change event type",
			slog.String("collection", s.cfg.Collection), slog.String("type", string(typ)))
	}
}

// Close unsubscribes from the push channel and disposes the store.
// In-flight mutation resolutions become no-ops on the collection.
func (s *Store[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// indexOf and removeAt require s.mu held.

func (s *Store[T]) indexOf(id string) int {
	for i, it := range s.items {
		if it.EntityID() == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) removeAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}
