// Package state keeps an in-memory copy of every store collection. Each
// pushed snapshot replaces the matching collection wholesale; nothing else
// writes to the mirror.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/port"
)

type Mirror struct {
	store    port.DocumentStore
	notifier port.Notifier
	logger   *zap.Logger

	mu         sync.RWMutex
	items      []domain.InventoryItem
	tasks      []domain.Task
	transfers  []domain.Transfer
	deliveries []domain.DeliveryRequest
	returns    []domain.ReturnRequest
	logs       []domain.LogEntry

	cancels []func()
}

func NewMirror(store port.DocumentStore, notifier port.Notifier, logger *zap.Logger) *Mirror {
	return &Mirror{store: store, notifier: notifier, logger: logger}
}

// Start subscribes to every collection. The first snapshot of each arrives
// before Start returns.
func (m *Mirror) Start(ctx context.Context) error {
	for _, c := range domain.Collections {
		cancel, err := m.store.Subscribe(ctx, c, func(snap port.Snapshot) {
			m.apply(ctx, snap)
		})
		if err != nil {
			m.Stop()
			return fmt.Errorf("subscribe %s: %w", c, err)
		}
		m.cancels = append(m.cancels, cancel)
	}
	return nil
}

func (m *Mirror) Stop() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

func (m *Mirror) apply(ctx context.Context, snap port.Snapshot) {
	m.mu.Lock()
	switch snap.Collection {
	case domain.CollectionItems:
		m.items = decodeAll[domain.InventoryItem](m.logger, snap)
		sort.Slice(m.items, func(i, j int) bool { return m.items[i].Serial < m.items[j].Serial })
	case domain.CollectionTasks:
		m.tasks = decodeAll[domain.Task](m.logger, snap)
		sort.Slice(m.tasks, func(i, j int) bool { return m.tasks[i].CreatedDate.After(m.tasks[j].CreatedDate) })
	case domain.CollectionTransfers:
		m.transfers = decodeAll[domain.Transfer](m.logger, snap)
		sort.Slice(m.transfers, func(i, j int) bool { return m.transfers[i].CreatedDate.After(m.transfers[j].CreatedDate) })
	case domain.CollectionDeliveryRequests:
		m.deliveries = decodeAll[domain.DeliveryRequest](m.logger, snap)
		sort.Slice(m.deliveries, func(i, j int) bool {
			return m.deliveries[i].RequestedDate.After(m.deliveries[j].RequestedDate)
		})
	case domain.CollectionReturnRequests:
		m.returns = decodeAll[domain.ReturnRequest](m.logger, snap)
		sort.Slice(m.returns, func(i, j int) bool {
			return m.returns[i].RequestedDate.After(m.returns[j].RequestedDate)
		})
	case domain.CollectionLogs:
		m.logs = decodeAll[domain.LogEntry](m.logger, snap)
		sort.Slice(m.logs, func(i, j int) bool { return m.logs[i].Timestamp.After(m.logs[j].Timestamp) })
	default:
		m.mu.Unlock()
		m.logger.Warn("snapshot for unknown collection", zap.String("collection", string(snap.Collection)))
		return
	}
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Render(ctx, snap.Collection)
	}
}

// decodeAll skips documents that do not decode so one bad record cannot
// blank a whole collection.
func decodeAll[T any](logger *zap.Logger, snap port.Snapshot) []T {
	out := make([]T, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			logger.Warn("skipping undecodable document",
				zap.String("collection", string(snap.Collection)),
				zap.String("id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, v)
	}
	return out
}

func (m *Mirror) Items() []domain.InventoryItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.InventoryItem, len(m.items))
	copy(out, m.items)
	return out
}

func (m *Mirror) Item(id string) (domain.InventoryItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.ID == id {
			return it, true
		}
	}
	return domain.InventoryItem{}, false
}

func (m *Mirror) Tasks() []domain.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Task, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = cloneTask(t)
	}
	return out
}

func (m *Mirror) Task(id string) (domain.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return cloneTask(t), true
		}
	}
	return domain.Task{}, false
}

func cloneTask(t domain.Task) domain.Task {
	t.AssignedItems = slices.Clone(t.AssignedItems)
	t.CompletedItems = slices.Clone(t.CompletedItems)
	return t
}

func (m *Mirror) Transfers() []domain.Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// DeliveryRequests are newest first by requested date.
func (m *Mirror) DeliveryRequests() []domain.DeliveryRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DeliveryRequest, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// ReturnRequests are newest first by requested date.
func (m *Mirror) ReturnRequests() []domain.ReturnRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ReturnRequest, len(m.returns))
	copy(out, m.returns)
	return out
}

// Logs are newest first.
func (m *Mirror) Logs() []domain.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

// PendingMoves lists the item movements still awaiting the receiving side.
func (m *Mirror) PendingMoves() []domain.PendingMove {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var moves []domain.PendingMove
	for _, d := range m.deliveries {
		if d.Pending() {
			moves = append(moves, d.Move())
		}
	}
	for _, r := range m.returns {
		if r.Pending() {
			moves = append(moves, r.Move())
		}
	}
	return moves
}
