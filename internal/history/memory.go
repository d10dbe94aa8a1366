package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and runs without a
// configured database path.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*IntentRecord
	order    []string
	feedback []*Feedback
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*IntentRecord)}
}

func (s *MemoryStore) RecordIntent(_ context.Context, rec *IntentRecord) (*IntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.records[stored.ID] = &stored
	s.order = append(s.order, stored.ID)

	out := stored
	return &out, nil
}

func (s *MemoryStore) UpdateOutcome(_ context.Context, intentID string, success bool, errMsg string) (*IntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[intentID]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	rec.Success = &success
	rec.ErrorMsg = errMsg
	rec.ResolvedAt = &now

	out := *rec
	return &out, nil
}

func (s *MemoryStore) RecentByUser(_ context.Context, userID string, n int) ([]*IntentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*IntentRecord
	for i := len(s.order) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		rec := s.records[s.order[i]]
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) SubmitFeedback(_ context.Context, fb *Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[fb.IntentID]; !ok {
		return ErrNotFound
	}

	stored := *fb
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.feedback = append(s.feedback, &stored)
	return nil
}

func (s *MemoryStore) CategoryStats(_ context.Context, userID string) ([]CategoryStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCat := make(map[string]*CategoryStat)
	for _, id := range s.order {
		rec := s.records[id]
		if rec.UserID != userID || rec.Category == "" {
			continue
		}
		stat, ok := byCat[rec.Category]
		if !ok {
			stat = &CategoryStat{Category: rec.Category}
			byCat[rec.Category] = stat
		}
		stat.Total++
		if rec.Success != nil && *rec.Success {
			stat.Succeeded++
		}
	}

	stats := make([]CategoryStat, 0, len(byCat))
	for _, stat := range byCat {
		if stat.Total > 0 {
			stat.SuccessRate = float64(stat.Succeeded) / float64(stat.Total)
		}
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

// Feedback returns all submitted feedback entries.
func (s *MemoryStore) Feedback() []*Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out
}

func (s *MemoryStore) Close() error { return nil }
