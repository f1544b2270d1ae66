package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/port"
)

// snapshotLog records every snapshot a subscriber receives.
type snapshotLog struct {
	mu    sync.Mutex
	snaps []port.Snapshot
}

func (l *snapshotLog) record(s port.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snaps)
}

func (l *snapshotLog) last() port.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snaps[len(l.snaps)-1]
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// testDocumentStore runs the behaviour every DocumentStore must share.
func testDocumentStore(t *testing.T, newStore func(t *testing.T) port.DocumentStore) {
	ctx := context.Background()

	t.Run("write get list", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionItems, "b", raw(t, map[string]string{"serial": "SN-B"})))
		require.NoError(t, s.Write(ctx, domain.CollectionItems, "a", raw(t, map[string]string{"serial": "SN-A"})))

		doc, err := s.Get(ctx, domain.CollectionItems, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(1), doc.Version)
		assert.JSONEq(t, `{"serial":"SN-A"}`, string(doc.Data))

		docs, err := s.List(ctx, domain.CollectionItems)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0].ID)

		empty, err := s.List(ctx, domain.CollectionTasks)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, domain.CollectionTasks, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		var nf domain.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, domain.CollectionTasks, nf.Collection)
	})

	t.Run("update merges fields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionItems, "a", raw(t, map[string]any{"serial": "SN-A", "condition": "available"})))
		require.NoError(t, s.Update(ctx, domain.CollectionItems, "a", map[string]any{"condition": "damaged"}))

		doc, err := s.Get(ctx, domain.CollectionItems, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)
		assert.JSONEq(t, `{"serial":"SN-A","condition":"damaged"}`, string(doc.Data))

		err = s.Update(ctx, domain.CollectionItems, "ghost", map[string]any{"x": 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionLogs, "l1", raw(t, map[string]string{"action": "x"})))
		require.NoError(t, s.Delete(ctx, domain.CollectionLogs, "l1"))
		_, err := s.Get(ctx, domain.CollectionLogs, "l1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		require.NoError(t, s.Delete(ctx, domain.CollectionLogs, "l1"))
	})

	t.Run("commit is all or nothing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionItems, "a", raw(t, map[string]string{"v": "1"})))

		err := s.Commit(ctx,
			port.WriteMutation(domain.CollectionLogs, "l1", raw(t, map[string]string{"action": "x"})).Expect(0),
			port.WriteMutation(domain.CollectionItems, "a", raw(t, map[string]string{"v": "2"})).Expect(7),
		)
		assert.ErrorIs(t, err, domain.ErrOptimisticLock)

		_, err = s.Get(ctx, domain.CollectionLogs, "l1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		doc, err := s.Get(ctx, domain.CollectionItems, "a")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"1"}`, string(doc.Data))
	})

	t.Run("expect zero rejects existing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionTasks, "t1", raw(t, map[string]string{"name": "a"})))
		err := s.Commit(ctx, port.WriteMutation(domain.CollectionTasks, "t1", raw(t, map[string]string{"name": "b"})).Expect(0))
		assert.ErrorIs(t, err, domain.ErrOptimisticLock)
	})

	t.Run("versioned commit across collections", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionItems, "a", raw(t, map[string]string{"v": "1"})))
		require.NoError(t, s.Write(ctx, domain.CollectionDeliveryRequests, "r", raw(t, map[string]string{"status": "pending"})))

		require.NoError(t, s.Commit(ctx,
			port.WriteMutation(domain.CollectionItems, "a", raw(t, map[string]string{"v": "2"})).Expect(1),
			port.DeleteMutation(domain.CollectionDeliveryRequests, "r").Expect(1),
			port.WriteMutation(domain.CollectionLogs, "l", raw(t, map[string]string{"action": "x"})).Expect(0),
		))

		doc, err := s.Get(ctx, domain.CollectionItems, "a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), doc.Version)
		_, err = s.Get(ctx, domain.CollectionDeliveryRequests, "r")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Get(ctx, domain.CollectionLogs, "l")
		assert.NoError(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		s := newStore(t)
		err := s.Write(ctx, domain.CollectionItems, "a", json.RawMessage(`{broken`))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("subscribe pushes full snapshots", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(ctx, domain.CollectionTasks, "t1", raw(t, map[string]string{"name": "a"})))

		var got snapshotLog
		cancel, err := s.Subscribe(ctx, domain.CollectionTasks, got.record)
		require.NoError(t, err)
		defer cancel()

		require.Equal(t, 1, got.count(), "initial snapshot is delivered on subscribe")
		assert.Len(t, got.last().Documents, 1)

		require.NoError(t, s.Write(ctx, domain.CollectionTasks, "t2", raw(t, map[string]string{"name": "b"})))
		require.Eventually(t, func() bool { return got.count() == 2 }, waitFor, tick)
		assert.Len(t, got.last().Documents, 2)

		require.NoError(t, s.Write(ctx, domain.CollectionItems, "i1", raw(t, map[string]string{"serial": "x"})))
		cancel()
		require.NoError(t, s.Write(ctx, domain.CollectionTasks, "t3", raw(t, map[string]string{"name": "c"})))
		assert.Never(t, func() bool { return got.count() > 2 }, 2*tick, tick)
	})
}
