// Package storage persists in-progress Gap Scan drafts.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/models"
)

// ErrDraftNotFound is returned when no draft is stored under a key
var ErrDraftNotFound = errors.New("draft not found")

// DraftStore is a single named slot per key holding a serialized draft.
// Save overwrites; there is no expiry.
type DraftStore interface {
	Load(ctx context.Context, key string) (models.FormDraft, error)
	Save(ctx context.Context, key string, draft models.FormDraft) error
	Delete(ctx context.Context, key string) error
}

// Key builds the slot name for a session
func Key(prefix, sessionID string) string {
	if prefix == "" {
		return sessionID
	}
	return prefix + ":" + sessionID
}

func encode(draft models.FormDraft) ([]byte, error) {
	b, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("error encoding draft: %w", err)
	}
	return b, nil
}

func decode(b []byte) (models.FormDraft, error) {
	var draft models.FormDraft
	if err := json.Unmarshal(b, &draft); err != nil {
		return models.FormDraft{}, fmt.Errorf("error decoding draft: %w", err)
	}
	return draft, nil
}

// MemoryStore keeps serialized drafts in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string][]byte)}
}

// Load returns the draft stored under key
func (s *MemoryStore) Load(_ context.Context, key string) (models.FormDraft, error) {
	s.mu.RLock()
	b, ok := s.drafts[key]
	s.mu.RUnlock()
	if !ok {
		return models.FormDraft{}, ErrDraftNotFound
	}
	return decode(b)
}

// Save overwrites the draft stored under key
func (s *MemoryStore) Save(_ context.Context, key string, draft models.FormDraft) error {
	b, err := encode(draft)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.drafts[key] = b
	s.mu.Unlock()
	return nil
}

// Delete removes the draft stored under key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.drafts, key)
	s.mu.Unlock()
	return nil
}

// Len reports how many drafts are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// FallbackStore writes through to a primary store and degrades to memory
// when the primary is unavailable, so a broken backend never fails the form.
// A memory copy exists only while the latest write to a key degraded, and a
// tombstone only while a delete could not reach the primary. Both shadow the
// primary until a later write or delete reaches it.
type FallbackStore struct {
	primary  DraftStore
	fallback *MemoryStore
	logger   *logging.Logger

	mu      sync.Mutex
	deleted map[string]struct{}
}

// NewFallbackStore wraps primary. A nil primary means memory only.
func NewFallbackStore(primary DraftStore, logger *logging.Logger) *FallbackStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackStore{
		primary:  primary,
		fallback: NewMemoryStore(),
		logger:   logger,
		deleted:  make(map[string]struct{}),
	}
}

// Load returns the newest copy: a pending delete or degraded write held in
// memory wins over the primary store.
func (s *FallbackStore) Load(ctx context.Context, key string) (models.FormDraft, error) {
	if s.tombstoned(key) {
		return models.FormDraft{}, ErrDraftNotFound
	}
	draft, err := s.fallback.Load(ctx, key)
	if err == nil || s.primary == nil {
		return draft, err
	}

	draft, err = s.primary.Load(ctx, key)
	switch {
	case err == nil:
		return draft, nil
	case errors.Is(err, ErrDraftNotFound):
		return models.FormDraft{}, ErrDraftNotFound
	default:
		s.degrade("load", key, err)
		return models.FormDraft{}, ErrDraftNotFound
	}
}

// Save writes to the primary store, or to memory when the primary fails
func (s *FallbackStore) Save(ctx context.Context, key string, draft models.FormDraft) error {
	s.setTombstone(key, false)
	if s.primary != nil {
		err := s.primary.Save(ctx, key, draft)
		if err == nil {
			_ = s.fallback.Delete(ctx, key)
			return nil
		}
		s.degrade("save", key, err)
	}
	return s.fallback.Save(ctx, key, draft)
}

// Delete removes the draft from both stores. When the primary cannot be
// reached the key is tombstoned so the stale primary copy stays hidden.
func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	_ = s.fallback.Delete(ctx, key)
	if s.primary == nil {
		return nil
	}
	if err := s.primary.Delete(ctx, key); err != nil {
		s.degrade("delete", key, err)
		s.setTombstone(key, true)
		return nil
	}
	s.setTombstone(key, false)
	return nil
}

func (s *FallbackStore) tombstoned(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deleted[key]
	return ok
}

func (s *FallbackStore) setTombstone(key string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.deleted[key] = struct{}{}
		return
	}
	delete(s.deleted, key)
}

func (s *FallbackStore) degrade(op, key string, err error) {
	s.logger.Warn("draft store unavailable, using memory", "op", op, "key", key, "error", err)
}
