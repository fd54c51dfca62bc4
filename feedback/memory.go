package feedback

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used by tests and by deployments that
// opt out of persistence. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	stats   map[string]ExpertStat
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stats: make(map[string]ExpertStat),
		now:   time.Now,
	}
}

func (s *MemoryStore) LogQuery(_ context.Context, question string, expertsUsed []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := Entry{
		QueryID:     NewQueryID(question, now),
		Question:    question,
		ExpertsUsed: append(ExpertList(nil), expertsUsed...),
		CreatedAt:   now,
	}
	s.entries = append(s.entries, entry)
	return entry.QueryID, nil
}

func (s *MemoryStore) RateSynthesis(_ context.Context, queryID string, helpful bool) error {
	return s.update(queryID, func(e *Entry) {
		v := helpful
		e.SynthesisHelpful = &v
	})
}

func (s *MemoryStore) RateExpert(_ context.Context, queryID, expertID string, isBest bool) error {
	err := s.update(queryID, func(e *Entry) {
		if isBest {
			e.BestExpert = expertID
		} else {
			e.WorstExpert = expertID
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stat := s.stats[expertID]
	stat.ExpertID = expertID
	stat.Total++
	if isBest {
		stat.Positive++
	} else {
		stat.Negative++
	}
	s.stats[expertID] = stat
	return nil
}

func (s *MemoryStore) LogAction(_ context.Context, queryID, action string) error {
	return s.update(queryID, func(e *Entry) { e.ActionTaken = action })
}

func (s *MemoryStore) AddNotes(_ context.Context, queryID, notes string) error {
	return s.update(queryID, func(e *Entry) { e.UserNotes = notes })
}

func (s *MemoryStore) Stats(_ context.Context) (map[string]ExpertStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ExpertStat, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return []Entry{}, nil
	}
	start := len(s.entries) - limit
	if start < 0 {
		start = 0
	}
	return append([]Entry(nil), s.entries[start:]...), nil
}

func (s *MemoryStore) AnalyzePatterns(ctx context.Context) (PatternReport, error) {
	entries, err := s.Recent(ctx, patternWindow)
	if err != nil {
		return PatternReport{}, err
	}
	return analyzeEntries(entries), nil
}

func (s *MemoryStore) update(queryID string, apply func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].QueryID == queryID {
			apply(&s.entries[i])
			return nil
		}
	}
	return unknownQuery(queryID)
}
