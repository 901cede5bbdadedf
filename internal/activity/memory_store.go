package activity

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultMaxPerForm bounds the journal of a single form.
const DefaultMaxPerForm = 1000

// MemoryStore implements Store using in-memory slices, one per form. When a
// form exceeds its bound the oldest entries are dropped.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string][]Entry
	seq        int64
	maxPerForm int
}

// NewMemoryStore creates a new empty MemoryStore. maxPerForm <= 0 uses
// DefaultMaxPerForm.
func NewMemoryStore(maxPerForm int) *MemoryStore {
	if maxPerForm <= 0 {
		maxPerForm = DefaultMaxPerForm
	}
	return &MemoryStore{entries: make(map[string][]Entry), maxPerForm: maxPerForm}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.seq++
		e.Seq = s.seq
		list := append(s.entries[e.FormID], e)
		if over := len(list) - s.maxPerForm; over > 0 {
			list = append([]Entry(nil), list[over:]...)
		}
		s.entries[e.FormID] = list
	}
	return nil
}

func (s *MemoryStore) QueryByForm(_ context.Context, formID string, opts QueryOptions) ([]Entry, string, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor int64
	if opts.Cursor != "" {
		if c, err := strconv.ParseInt(opts.Cursor, 10, 64); err == nil {
			cursor = c
		}
	}
	text := strings.ToLower(opts.Text)

	var matched []Entry
	for _, e := range s.entries[formID] {
		if opts.Since != nil && e.OccurredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.OccurredAt.After(*opts.Until) {
			continue
		}
		if len(opts.Kinds) > 0 && !contains(opts.Kinds, e.Kind) {
			continue
		}
		if opts.FieldKey != "" && e.FieldKey != opts.FieldKey {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Summary), text) {
			continue
		}
		if cursor > 0 && e.Seq >= cursor {
			continue
		}
		matched = append(matched, e)
	}

	// Newest first.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Seq > matched[j].Seq
	})

	totalCount := len(matched)
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var nextCursor string
	if len(matched) > limit {
		matched = matched[:limit]
		nextCursor = strconv.FormatInt(matched[len(matched)-1].Seq, 10)
	}

	return matched, nextCursor, totalCount, nil
}

func (s *MemoryStore) DropForm(_ context.Context, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, formID)
	return nil
}

// Forms returns how many forms have a journal.
func (s *MemoryStore) Forms() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
