package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/adapter/storage"
	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/state"
	"github.com/rl1809/warehouse-flow/internal/port"
)

const (
	netUser    = "nina"
	netUser2   = "nate"
	infraUser  = "ian"
	infraUser2 = "ivy"
	adminUser  = "ada"
)

// Mock IdentityProvider
type mockIdentity struct {
	users map[string]domain.Principal
}

func newMockIdentity() *mockIdentity {
	users := map[string]domain.Principal{}
	add := func(id string, w domain.Warehouse, admin bool) {
		users[id] = domain.Principal{
			Identity: domain.Identity{ID: id, DisplayName: "user " + id},
			Profile:  domain.Profile{Warehouse: w, Admin: admin},
		}
	}
	add(netUser, domain.WarehouseNet, false)
	add(netUser2, domain.WarehouseNet, false)
	add(infraUser, domain.WarehouseInfrastructure, false)
	add(infraUser2, domain.WarehouseInfrastructure, false)
	add(adminUser, "", true)
	return &mockIdentity{users: users}
}

func (m *mockIdentity) CurrentPrincipal(ctx context.Context) (domain.Identity, error) {
	p, ok := m.users[domain.UserIDFromContext(ctx)]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return p.Identity, nil
}

func (m *mockIdentity) UserProfile(ctx context.Context, userID string) (domain.Profile, error) {
	p, ok := m.users[userID]
	if !ok {
		return domain.Profile{}, domain.ErrUnauthenticated
	}
	return p.Profile, nil
}

// Mock Notifier
type mockNotifier struct {
	mu      sync.Mutex
	notices []domain.Notice
}

func (m *mockNotifier) Render(ctx context.Context, c domain.Collection) {}

func (m *mockNotifier) Notify(ctx context.Context, n domain.Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, n)
}

func (m *mockNotifier) all() []domain.Notice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notice(nil), m.notices...)
}

// Mock MetricsRecorder
type mockMetrics struct {
	mu       sync.Mutex
	outcomes map[string][]bool
}

func (m *mockMetrics) Observe(ctx context.Context, op string, success bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string][]bool{}
	}
	m.outcomes[op] = append(m.outcomes[op], success)
}

// failingStore refuses commits while fail is set.
type failingStore struct {
	port.DocumentStore
	mu   sync.Mutex
	fail bool
}

func (s *failingStore) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

func (s *failingStore) Commit(ctx context.Context, mutations ...port.Mutation) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.DocumentStore.Commit(ctx, mutations...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances one second per call so every record gets a distinct time.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store     *failingStore
	mirror    *state.Mirror
	guard     *storage.MemoryGuard
	notifier  *mockNotifier
	metrics   *mockMetrics
	clock     *fakeClock
	inventory *InventoryService
	tasks     *TaskService
	transfers *TransferService
	workflow  *WorkflowService
	logs      *LogService
}

func newFixture(t *testing.T, opts WorkflowOptions) *fixture {
	t.Helper()
	f := &fixture{
		store:    &failingStore{DocumentStore: storage.NewMemoryStore()},
		guard:    storage.NewMemoryGuard(),
		notifier: &mockNotifier{},
		metrics:  &mockMetrics{},
		clock:    &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.mirror = state.NewMirror(f.store, nil, zap.NewNop())
	require.NoError(t, f.mirror.Start(context.Background()))
	t.Cleanup(f.mirror.Stop)

	deps := Deps{
		Store:    f.store,
		Identity: newMockIdentity(),
		Guard:    f.guard,
		Notifier: f.notifier,
		Metrics:  f.metrics,
		Mirror:   f.mirror,
		Logger:   zap.NewNop(),
		Now:      f.clock.Now,
	}
	f.inventory = NewInventoryService(deps)
	f.tasks = NewTaskService(deps)
	f.transfers = NewTransferService(deps)
	f.workflow = NewWorkflowService(deps, opts)
	f.logs = NewLogService(deps)
	return f
}

func as(user string) context.Context {
	return domain.ContextWithUserID(context.Background(), user)
}

func (f *fixture) item(t *testing.T, serial string, w domain.Warehouse, c domain.Condition) domain.InventoryItem {
	t.Helper()
	item, err := f.inventory.CreateItem(as(adminUser), ItemInput{Serial: serial, Name: "Item " + serial, Warehouse: w, Condition: c})
	require.NoError(t, err)
	return item
}

func (f *fixture) task(t *testing.T, creator, name string) domain.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(as(creator), TaskInput{Name: name})
	require.NoError(t, err)
	return task
}

func (f *fixture) storedItem(t *testing.T, id string) domain.InventoryItem {
	t.Helper()
	item, _, err := load[domain.InventoryItem](context.Background(), f.store, domain.CollectionItems, id)
	require.NoError(t, err)
	return item
}

func (f *fixture) storedTask(t *testing.T, id string) domain.Task {
	t.Helper()
	task, _, err := load[domain.Task](context.Background(), f.store, domain.CollectionTasks, id)
	require.NoError(t, err)
	return task
}

func (f *fixture) storedDelivery(t *testing.T, id string) domain.DeliveryRequest {
	t.Helper()
	req, _, err := load[domain.DeliveryRequest](context.Background(), f.store, domain.CollectionDeliveryRequests, id)
	require.NoError(t, err)
	return req
}

func (f *fixture) storedReturn(t *testing.T, id string) domain.ReturnRequest {
	t.Helper()
	req, _, err := load[domain.ReturnRequest](context.Background(), f.store, domain.CollectionReturnRequests, id)
	require.NoError(t, err)
	return req
}

func (f *fixture) logTypes() []domain.LogType {
	var out []domain.LogType
	for _, l := range f.mirror.Logs() {
		out = append(out, l.Type)
	}
	return out
}

// delivered requests and confirms a delivery, leaving a fresh item in
// infrastructure assigned to a fresh task.
func (f *fixture) delivered(t *testing.T, serial string) (domain.InventoryItem, domain.Task) {
	t.Helper()
	item := f.item(t, serial, domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "Rollout "+serial)
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)
	require.NoError(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID))
	return f.storedItem(t, item.ID), f.storedTask(t, task.ID)
}
