package storage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/port"
)

type docKey struct {
	collection domain.Collection
	id         string
}

// resolve computes the state of a document after applying m. A nil result
// means the document does not exist afterwards.
func resolve(m port.Mutation, current *port.Document, now time.Time) (*port.Document, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("%w: empty document id", domain.ErrValidation)
	}
	var version int64
	if current != nil {
		version = current.Version
	}
	if m.IfVersion != nil && *m.IfVersion != version {
		return nil, fmt.Errorf("%w: %s/%s at version %d, expected %d",
			domain.ErrOptimisticLock, m.Collection, m.ID, version, *m.IfVersion)
	}

	switch m.Op {
	case port.OpWrite:
		if !json.Valid(m.Data) {
			return nil, fmt.Errorf("%w: %s/%s body is not valid json", domain.ErrValidation, m.Collection, m.ID)
		}
		data := make(json.RawMessage, len(m.Data))
		copy(data, m.Data)
		return &port.Document{ID: m.ID, Version: version + 1, Data: data, UpdatedAt: now}, nil
	case port.OpUpdate:
		if current == nil {
			return nil, domain.NotFoundError{Collection: m.Collection, ID: m.ID}
		}
		data, err := mergeFields(current.Data, m.Fields)
		if err != nil {
			return nil, fmt.Errorf("merge %s/%s: %w", m.Collection, m.ID, err)
		}
		return &port.Document{ID: m.ID, Version: version + 1, Data: data, UpdatedAt: now}, nil
	case port.OpDelete:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown mutation op %d", m.Op)
	}
}

func mergeFields(body json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &merged); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// subscribers keeps snapshot callbacks per collection.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	byColl map[domain.Collection]map[int]port.SnapshotFunc
}

func newSubscribers() *subscribers {
	return &subscribers{byColl: make(map[domain.Collection]map[int]port.SnapshotFunc)}
}

func (s *subscribers) add(c domain.Collection, fn port.SnapshotFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if s.byColl[c] == nil {
		s.byColl[c] = make(map[int]port.SnapshotFunc)
	}
	s.byColl[c][s.nextID] = fn
	return s.nextID
}

func (s *subscribers) remove(c domain.Collection, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byColl[c], id)
}

func (s *subscribers) watching(c domain.Collection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byColl[c]) > 0
}

func (s *subscribers) notify(snap port.Snapshot) {
	s.mu.Lock()
	fns := make([]port.SnapshotFunc, 0, len(s.byColl[snap.Collection]))
	for _, fn := range s.byColl[snap.Collection] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
