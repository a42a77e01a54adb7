// Package catalog owns the QPU inventory: it loads descriptors from a source
// and publishes them as immutable, versioned snapshots that binding requests
// read without locking.
package catalog

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
)

// ErrNoSnapshot is returned when nothing has been published yet
var ErrNoSnapshot = errors.New("no catalog snapshot published")

// Snapshot is one published version of the inventory. It must not be
// modified after publication.
type Snapshot struct {
	Version  uint64        `json:"version"`
	LoadedAt time.Time     `json:"loaded_at"`
	Source   string        `json:"source"`
	QPUs     []*domain.QPU `json:"qpus"`

	byID map[string]*domain.QPU
}

// Get returns the descriptor with the given id
func (s *Snapshot) Get(id string) (*domain.QPU, bool) {
	q, ok := s.byID[id]
	return q, ok
}

// Subset returns the descriptors with the given ids in snapshot order, plus
// the ids that are not in the snapshot.
func (s *Snapshot) Subset(ids []string) ([]*domain.QPU, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := make([]*domain.QPU, 0, len(ids))
	for _, q := range s.QPUs {
		if want[q.ID] {
			out = append(out, q)
			delete(want, q.ID)
		}
	}

	var unknown []string
	for id := range want {
		unknown = append(unknown, id)
	}
	sort.Strings(unknown)
	return out, unknown
}

// Store holds the current snapshot. Readers get the published pointer and
// never observe a partially built snapshot.
type Store struct {
	mu      sync.Mutex // serializes publishers
	current atomic.Pointer[Snapshot]
	version uint64
	now     func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Current returns the latest snapshot, or ErrNoSnapshot
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Publish copies qpus into a new snapshot, sorted by id, and makes it current.
// Versions start at 1 and increase by one per publication.
func (s *Store) Publish(source string, qpus []*domain.QPU) *Snapshot {
	copies := make([]*domain.QPU, 0, len(qpus))
	byID := make(map[string]*domain.QPU, len(qpus))
	for _, q := range qpus {
		if q == nil {
			continue
		}
		c := q.Clone()
		copies = append(copies, c)
		byID[c.ID] = c
	}
	sort.Slice(copies, func(i, j int) bool { return copies[i].ID < copies[j].ID })

	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	snap := &Snapshot{
		Version:  s.version,
		LoadedAt: s.now().UTC(),
		Source:   source,
		QPUs:     copies,
		byID:     byID,
	}
	s.current.Store(snap)
	return snap
}
