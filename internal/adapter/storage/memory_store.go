package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/port"
)

// MemoryStore is an in-process DocumentStore. Snapshots are pushed
// synchronously from the committing goroutine, in commit order, so a
// subscriber callback must not write back to the store.
type MemoryStore struct {
	commitMu sync.Mutex
	mu       sync.RWMutex
	docs     map[domain.Collection]map[string]port.Document
	subs     *subscribers
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[domain.Collection]map[string]port.Document),
		subs: newSubscribers(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Get(ctx context.Context, c domain.Collection, id string) (port.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[c][id]
	if !ok {
		return port.Document{}, domain.NotFoundError{Collection: c, ID: id}
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) List(ctx context.Context, c domain.Collection) ([]port.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(c), nil
}

func (s *MemoryStore) listLocked(c domain.Collection) []port.Document {
	out := make([]port.Document, 0, len(s.docs[c]))
	for _, doc := range s.docs[c] {
		out = append(out, cloneDocument(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Write(ctx context.Context, c domain.Collection, id string, data json.RawMessage) error {
	return s.Commit(ctx, port.WriteMutation(c, id, data))
}

func (s *MemoryStore) Update(ctx context.Context, c domain.Collection, id string, fields map[string]any) error {
	return s.Commit(ctx, port.UpdateMutation(c, id, fields))
}

func (s *MemoryStore) Delete(ctx context.Context, c domain.Collection, id string) error {
	return s.Commit(ctx, port.DeleteMutation(c, id))
}

func (s *MemoryStore) Commit(ctx context.Context, mutations ...port.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	now := s.now()
	working := make(map[docKey]*port.Document)
	var order []docKey
	for _, m := range mutations {
		key := docKey{collection: m.Collection, id: m.ID}
		current, seen := working[key]
		if !seen {
			if doc, ok := s.docs[m.Collection][m.ID]; ok {
				d := doc
				current = &d
			}
			order = append(order, key)
		}
		next, err := resolve(m, current, now)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		working[key] = next
	}

	changed := make(map[domain.Collection]bool)
	var collections []domain.Collection
	for _, key := range order {
		next := working[key]
		if next == nil {
			if _, ok := s.docs[key.collection][key.id]; !ok {
				continue
			}
			delete(s.docs[key.collection], key.id)
		} else {
			if s.docs[key.collection] == nil {
				s.docs[key.collection] = make(map[string]port.Document)
			}
			s.docs[key.collection][key.id] = *next
		}
		if !changed[key.collection] {
			changed[key.collection] = true
			collections = append(collections, key.collection)
		}
	}

	snapshots := make([]port.Snapshot, 0, len(collections))
	for _, c := range collections {
		snapshots = append(snapshots, port.Snapshot{Collection: c, Documents: s.listLocked(c)})
	}
	s.mu.Unlock()

	for _, snap := range snapshots {
		s.subs.notify(snap)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, c domain.Collection, fn port.SnapshotFunc) (func(), error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	snap := port.Snapshot{Collection: c, Documents: s.listLocked(c)}
	s.mu.RUnlock()

	id := s.subs.add(c, fn)
	fn(snap)
	return func() { s.subs.remove(c, id) }, nil
}

func cloneDocument(d port.Document) port.Document {
	data := make(json.RawMessage, len(d.Data))
	copy(data, d.Data)
	d.Data = data
	return d
}
