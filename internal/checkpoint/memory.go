package checkpoint

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
	runs        map[string]RunRecord
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]Checkpoint),
		runs:        make(map[string]RunRecord),
		history:     make(map[string][]float64),
	}
}

// Init resets the store to empty.
func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints = make(map[string]Checkpoint)
	s.runs = make(map[string]RunRecord)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.Weights = append([]float64(nil), cp.Weights...)
	cp.Optimizer.Velocity = append([]float64(nil), cp.Optimizer.Velocity...)
	s.checkpoints[cp.RunID] = cp
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string) (Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[runID]
	if !ok {
		return Checkpoint{}, false, nil
	}
	cp.Weights = append([]float64(nil), cp.Weights...)
	cp.Optimizer.Velocity = append([]float64(nil), cp.Optimizer.Velocity...)
	return cp, true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, record RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[record.RunID] = record
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.runs[runID]
	return record, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]RunRecord, 0, len(s.runs))
	for _, record := range s.runs {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RunID < records[j].RunID })
	return records, nil
}

func (s *MemoryStore) SaveRewardHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetRewardHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}
