package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"tracker/internal/core"
	"tracker/internal/store"
)

// Ensure interface conformance
var (
	_ store.Store      = (*Store)(nil)
	_ store.Subscriber = (*Store)(nil)
)

type subscription struct {
	id uint64
	fn func([]core.Record)
}

// Store keeps records in process, one ordered slice per kind.
type Store struct {
	mu      sync.Mutex
	records map[core.Kind][]core.Record
	subs    map[core.Kind][]subscription
	nextSub uint64
}

func New(seed ...core.Record) *Store {
	s := &Store{
		records: make(map[core.Kind][]core.Record),
		subs:    make(map[core.Kind][]subscription),
	}
	for _, r := range seed {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		s.records[r.Kind] = append(s.records[r.Kind], r)
	}
	return s
}

// NewFromFiles seeds the store from <base>/<kind>.json files, each holding a
// JSON array of records. Missing files are skipped; malformed ones fail.
func NewFromFiles(base string) (*Store, error) {
	var seed []core.Record
	for _, kind := range core.Kinds() {
		path := filepath.Join(base, string(kind)+".json")
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read seed %s: %w", path, err)
		}
		var records []core.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse seed %s: %w", path, err)
		}
		for _, r := range records {
			r.Kind = kind
			seed = append(seed, r)
		}
	}
	return New(seed...), nil
}

// List returns the records of kind passing filter, in insertion order.
func (s *Store) List(_ context.Context, kind core.Kind, filter store.Filter) ([]core.Record, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Record, 0, len(s.records[kind]))
	for _, r := range s.records[kind] {
		if filter.Matches(r) {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

// Create validates and stores the record under a fresh ID.
func (s *Store) Create(_ context.Context, r core.Record) (core.Record, error) {
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	r = clone(r)
	r.ID = uuid.NewString()

	s.mu.Lock()
	s.records[r.Kind] = append(s.records[r.Kind], r)
	notify := s.snapshotLocked(r.Kind)
	s.mu.Unlock()

	notify()
	return clone(r), nil
}

func (s *Store) Update(_ context.Context, kind core.Kind, id string, patch store.Patch) (core.Record, error) {
	if strings.TrimSpace(id) == "" {
		return core.Record{}, core.ErrEmptyID
	}
	s.mu.Lock()
	i := s.indexLocked(kind, id)
	if i < 0 {
		s.mu.Unlock()
		return core.Record{}, fmt.Errorf("%w: %s/%s", core.ErrRecordNotFound, kind, id)
	}
	updated := patch.Apply(s.records[kind][i])
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return core.Record{}, err
	}
	s.records[kind][i] = updated
	notify := s.snapshotLocked(kind)
	s.mu.Unlock()

	notify()
	return clone(updated), nil
}

func (s *Store) Delete(_ context.Context, kind core.Kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return core.ErrEmptyID
	}
	s.mu.Lock()
	i := s.indexLocked(kind, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", core.ErrRecordNotFound, kind, id)
	}
	s.records[kind] = append(s.records[kind][:i:i], s.records[kind][i+1:]...)
	notify := s.snapshotLocked(kind)
	s.mu.Unlock()

	notify()
	return nil
}

// Subscribe calls fn with the current snapshot of kind and again after
// every change to it.
func (s *Store) Subscribe(kind core.Kind, fn func([]core.Record)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[kind] = append(s.subs[kind], subscription{id: id, fn: fn})
	snapshot := s.copyLocked(kind)
	s.mu.Unlock()

	fn(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subs[kind]
			for i, sub := range subs {
				if sub.id == id {
					s.subs[kind] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) indexLocked(kind core.Kind, id string) int {
	for i, r := range s.records[kind] {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) copyLocked(kind core.Kind) []core.Record {
	out := make([]core.Record, 0, len(s.records[kind]))
	for _, r := range s.records[kind] {
		out = append(out, clone(r))
	}
	return out
}

// snapshotLocked captures subscribers and data under the lock and returns
// the delivery to run after unlocking.
func (s *Store) snapshotLocked(kind core.Kind) func() {
	subs := append([]subscription(nil), s.subs[kind]...)
	if len(subs) == 0 {
		return func() {}
	}
	snapshot := s.copyLocked(kind)
	return func() {
		for _, sub := range subs {
			sub.fn(snapshot)
		}
	}
}

func clone(r core.Record) core.Record {
	r.Payload = r.Payload.Clone()
	return r
}
