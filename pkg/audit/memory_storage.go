package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage implements Storage over a process-local slice. Suitable for
// unit tests and ephemeral deployments; entries do not survive a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStorage creates an empty in-memory audit Storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStorage) Search(_ context.Context, filter *Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if matchesFilter(e, filter) {
			out = append(out, e)
		}
	}
	if filter != nil && filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter != nil && filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStorage) GetByID(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (s *MemoryStorage) GetChain(_ context.Context, chainID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if e.ChainID == chainID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStorage) Cleanup(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Timestamp.After(before) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func matchesFilter(e *Entry, filter *Filter) bool {
	if filter == nil {
		return true
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, e.Type) {
		return false
	}
	if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
		return false
	}
	if len(filter.Results) > 0 && !containsResult(filter.Results, e.Result) {
		return false
	}
	if filter.ChainID != "" && e.ChainID != filter.ChainID {
		return false
	}
	if filter.TimeRange != nil {
		if e.Timestamp.Before(filter.TimeRange.Start) || e.Timestamp.After(filter.TimeRange.End) {
			return false
		}
	}
	return true
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsAction(actions []Action, a Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}

func containsResult(results []Result, r Result) bool {
	for _, candidate := range results {
		if candidate == r {
			return true
		}
	}
	return false
}
