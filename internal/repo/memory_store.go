package repo

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

const memShards = 32

// MemoryWindowStore is an in-process window store for single-instance
// deployments and tests. Users are spread over a fixed set of shards; each
// shard mutex covers both the per-key uniqueness check and the per-user
// quota count, which gives the same guarantees as SQLWindowStore.
//
// It is safe for concurrent use. Nothing is persisted across restarts.
type MemoryWindowStore struct {
	shards [memShards]memShard
}

type memShard struct {
	mu     sync.Mutex
	byUser map[string][]domain.TranslationWindow
}

// NewMemoryWindowStore returns an empty store.
func NewMemoryWindowStore() *MemoryWindowStore {
	s := &MemoryWindowStore{}
	for i := range s.shards {
		s.shards[i].byUser = make(map[string][]domain.TranslationWindow)
	}
	return s
}

func (s *MemoryWindowStore) shard(userID string) *memShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.shards[h.Sum32()%memShards]
}

// FindActive returns a copy of the active window for the pair, or ErrNotFound.
func (s *MemoryWindowStore) FindActive(_ context.Context, userID string, key domain.ContentKey, now time.Time) (*domain.TranslationWindow, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var best *domain.TranslationWindow
	for i := range sh.byUser[userID] {
		w := &sh.byUser[userID][i]
		if w.Key() == key && w.ActiveAt(now) && (best == nil || w.ExpiresAt.After(best.ExpiresAt)) {
			best = w
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	out := *best
	return &out, nil
}

// CountActive returns the number of active windows for the user.
func (s *MemoryWindowStore) CountActive(_ context.Context, userID string, now time.Time) (int64, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return int64(countActiveLocked(sh.byUser[userID], now)), nil
}

// EarliestExpiry returns the soonest expiry among active windows, or nil.
func (s *MemoryWindowStore) EarliestExpiry(_ context.Context, userID string, now time.Time) (*time.Time, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var at *time.Time
	for _, w := range sh.byUser[userID] {
		if w.ActiveAt(now) && (at == nil || w.ExpiresAt.Before(*at)) {
			e := w.ExpiresAt
			at = &e
		}
	}
	return at, nil
}

// InsertIfAbsent has the same contract as InsertWindowIfAbsent.
func (s *MemoryWindowStore) InsertIfAbsent(_ context.Context, w *domain.TranslationWindow, quotaMax int) (*domain.TranslationWindow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	now := w.CreatedAt

	sh := s.shard(w.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rows := sh.byUser[w.UserID]
	key := w.Key()
	for _, r := range rows {
		if r.Key() == key && r.ActiveAt(now) {
			return nil, ErrConflict
		}
	}
	if quotaMax > 0 && countActiveLocked(rows, now) >= quotaMax {
		return nil, ErrQuotaExceeded
	}
	sh.byUser[w.UserID] = append(rows, *w)
	out := *w
	return &out, nil
}

// ListActive returns up to limit active windows, soonest expiry first.
func (s *MemoryWindowStore) ListActive(_ context.Context, userID string, now time.Time, limit int) ([]domain.TranslationWindow, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	out := make([]domain.TranslationWindow, 0, len(sh.byUser[userID]))
	for _, w := range sh.byUser[userID] {
		if w.ActiveAt(now) {
			out = append(out, w)
		}
	}
	sh.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Stats returns the active count and latest CreatedAt, like WindowsStats.
func (s *MemoryWindowStore) Stats(_ context.Context, userID string, now time.Time) (int64, *time.Time, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var (
		n      int64
		latest *time.Time
	)
	for _, w := range sh.byUser[userID] {
		if !w.ActiveAt(now) {
			continue
		}
		n++
		if latest == nil || w.CreatedAt.After(*latest) {
			c := w.CreatedAt
			latest = &c
		}
	}
	return n, latest, nil
}

// PurgeExpired drops windows that expired at or before cutoff.
func (s *MemoryWindowStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for uid, rows := range sh.byUser {
			kept := rows[:0]
			for _, w := range rows {
				if w.ExpiresAt.After(cutoff) {
					kept = append(kept, w)
				} else {
					removed++
				}
			}
			if len(kept) == 0 {
				delete(sh.byUser, uid)
			} else {
				sh.byUser[uid] = kept
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func countActiveLocked(rows []domain.TranslationWindow, now time.Time) int {
	n := 0
	for _, w := range rows {
		if w.ActiveAt(now) {
			n++
		}
	}
	return n
}
