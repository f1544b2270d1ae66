package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

func TestCreateDeliveryRequest_RecordsPending(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S001", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T1")

	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID, Notes: "  rack 4 "})
	require.NoError(t, err)

	stored := f.storedDelivery(t, req.ID)
	assert.Equal(t, domain.RequestStatusPending, stored.Status)
	assert.Equal(t, "S001", stored.Serial)
	assert.Equal(t, "Item S001", stored.Name)
	assert.Equal(t, "T1", stored.TaskName)
	assert.Equal(t, netUser, stored.RequestedBy)
	assert.Equal(t, "rack 4", stored.Notes)

	untouched := f.storedItem(t, item.ID)
	assert.Equal(t, domain.WarehouseNet, untouched.Warehouse, "item is untouched until confirmation")
	assert.Equal(t, domain.ConditionAvailable, untouched.Condition)
	assert.Nil(t, untouched.TaskID)
	assert.Empty(t, f.storedTask(t, task.ID).AssignedItems)
	assert.Equal(t, domain.LogDeliveryRequest, f.logTypes()[0])
}

func TestConfirmDeliveryRequest_AssignsItem(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S001", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T1")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	require.NoError(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID))

	got := f.storedItem(t, item.ID)
	assert.Equal(t, domain.WarehouseInfrastructure, got.Warehouse)
	assert.Equal(t, domain.ConditionInUse, got.Condition)
	assert.Equal(t, task.ID, got.AssignedTask())
	assert.Contains(t, f.storedTask(t, task.ID).AssignedItems, item.ID)

	stored := f.storedDelivery(t, req.ID)
	assert.Equal(t, domain.RequestStatusConfirmed, stored.Status)
	assert.Equal(t, infraUser, stored.ConfirmedBy)
	require.NotNil(t, stored.ConfirmedDate)
	assert.Equal(t, domain.LogDeliveryConfirmed, f.logTypes()[0])
}

func TestCreateReturnRequest_CapturesCondition(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item, _ := f.delivered(t, "S001")

	damaged := domain.ConditionDamaged
	_, err := f.inventory.UpdateItem(as(infraUser), item.ID, ItemPatch{Condition: &damaged})
	require.NoError(t, err)

	req, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionDamaged, f.storedReturn(t, req.ID).ItemCondition)
	assert.Equal(t, domain.RequestStatusPending, req.Status)
}

func TestCreateReturnRequest_TaskNameFromStore(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	// A mirror that stopped receiving snapshots stands in for a lagging feed.
	f.mirror.Stop()
	item, task := f.delivered(t, "S1")
	_, ok := f.mirror.Task(task.ID)
	require.False(t, ok)

	req, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, task.Name, f.storedReturn(t, req.ID).TaskName)
}

func TestConfirmReturnRequest_KeepsCondition(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item, task := f.delivered(t, "S001")

	damaged := domain.ConditionDamaged
	_, err := f.inventory.UpdateItem(as(infraUser), item.ID, ItemPatch{Condition: &damaged})
	require.NoError(t, err)
	req, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)

	require.NoError(t, f.workflow.ConfirmReturnRequest(as(netUser), req.ID))

	got := f.storedItem(t, item.ID)
	assert.Equal(t, domain.WarehouseNet, got.Warehouse)
	assert.Equal(t, domain.ConditionDamaged, got.Condition)
	assert.Nil(t, got.TaskID)
	assert.Equal(t, f.storedReturn(t, req.ID).ItemCondition, got.Condition)

	storedTask := f.storedTask(t, task.ID)
	assert.NotContains(t, storedTask.AssignedItems, item.ID)
	assert.Contains(t, storedTask.CompletedItems, item.ID)
	assert.Equal(t, domain.LogReturnConfirmed, f.logTypes()[0])
}

func TestCancelReturnRequest_OnlyRequester(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item, _ := f.delivered(t, "S001")
	req, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)

	err = f.workflow.CancelReturnRequest(as(netUser), req.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.RequestStatusPending, f.storedReturn(t, req.ID).Status)

	err = f.workflow.CancelReturnRequest(as(infraUser2), req.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, f.workflow.CancelReturnRequest(as(infraUser), req.ID))
	_, _, err = load[domain.ReturnRequest](context.Background(), f.store, domain.CollectionReturnRequests, req.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.LogReturnCancelled, f.logTypes()[0])
}

func TestCreateDeliveryRequest_Validation(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	available := f.item(t, "NET-1", domain.WarehouseNet, domain.ConditionAvailable)
	broken := f.item(t, "NET-2", domain.WarehouseNet, domain.ConditionMaintenance)
	infra := f.item(t, "INF-1", domain.WarehouseInfrastructure, domain.ConditionAvailable)
	open := f.task(t, netUser, "open")
	closed := f.task(t, netUser, "closed")
	require.NoError(t, f.tasks.CloseTask(as(netUser), closed.ID))

	tests := []struct {
		name string
		user string
		in   DeliveryInput
		want error
	}{
		{"infra side cannot request", infraUser, DeliveryInput{ItemID: available.ID, TaskID: open.ID}, domain.ErrPermissionDenied},
		{"anonymous", "", DeliveryInput{ItemID: available.ID, TaskID: open.ID}, domain.ErrUnauthenticated},
		{"missing task", netUser, DeliveryInput{ItemID: available.ID}, domain.ErrValidation},
		{"unknown item", netUser, DeliveryInput{ItemID: "ghost", TaskID: open.ID}, domain.ErrNotFound},
		{"unknown task", netUser, DeliveryInput{ItemID: available.ID, TaskID: "ghost"}, domain.ErrNotFound},
		{"item not available", netUser, DeliveryInput{ItemID: broken.ID, TaskID: open.ID}, domain.ErrValidation},
		{"item not in net", netUser, DeliveryInput{ItemID: infra.ID, TaskID: open.ID}, domain.ErrValidation},
		{"task closed", netUser, DeliveryInput{ItemID: available.ID, TaskID: closed.ID}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workflow.CreateDeliveryRequest(as(tt.user), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.mirror.DeliveryRequests())
}

func TestCreateDeliveryRequest_DuplicatePending(t *testing.T) {
	t.Run("blocked by default", func(t *testing.T) {
		f := newFixture(t, WorkflowOptions{})
		item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
		task := f.task(t, netUser, "T")

		_, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
		require.NoError(t, err)
		_, err = f.workflow.CreateDeliveryRequest(as(netUser2), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Len(t, f.mirror.DeliveryRequests(), 1)
	})

	t.Run("allowed when configured", func(t *testing.T) {
		f := newFixture(t, WorkflowOptions{AllowDuplicatePending: true})
		item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
		task := f.task(t, netUser, "T")

		first, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
		require.NoError(t, err)
		second, err := f.workflow.CreateDeliveryRequest(as(netUser2), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
		require.NoError(t, err)

		require.NoError(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), first.ID))
		err = f.workflow.ConfirmDeliveryRequest(as(infraUser), second.ID)
		assert.ErrorIs(t, err, domain.ErrValidation, "the item already left net")
		assert.Equal(t, domain.RequestStatusPending, f.storedDelivery(t, second.ID).Status)
	})
}

func TestDecisionsAreFinal(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	require.NoError(t, f.workflow.RejectDeliveryRequest(as(infraUser), req.ID))
	stored := f.storedDelivery(t, req.ID)
	assert.Equal(t, domain.RequestStatusRejected, stored.Status)
	assert.Equal(t, infraUser, stored.RejectedBy)

	assert.ErrorIs(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID), domain.ErrInvalidTransition)
	assert.ErrorIs(t, f.workflow.RejectDeliveryRequest(as(infraUser), req.ID), domain.ErrInvalidTransition)
	assert.ErrorIs(t, f.workflow.CancelDeliveryRequest(as(netUser), req.ID), domain.ErrInvalidTransition)

	assert.Equal(t, domain.RequestStatusRejected, f.storedDelivery(t, req.ID).Status)
	assert.Equal(t, domain.WarehouseNet, f.storedItem(t, item.ID).Warehouse)
}

func TestDecisionPermissions(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item, _ := f.delivered(t, "S1")
	ret, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.workflow.ConfirmReturnRequest(as(infraUser), ret.ID), domain.ErrPermissionDenied)
	assert.ErrorIs(t, f.workflow.RejectReturnRequest(as(infraUser2), ret.ID), domain.ErrPermissionDenied)
	_, err = f.workflow.CreateReturnRequest(as(netUser), ReturnInput{ItemID: item.ID})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, f.workflow.RejectReturnRequest(as(adminUser), ret.ID))
	assert.Equal(t, domain.RequestStatusRejected, f.storedReturn(t, ret.ID).Status)
	assert.Equal(t, domain.WarehouseInfrastructure, f.storedItem(t, item.ID).Warehouse)
}

func TestCancelDeliveryRequest(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.workflow.CancelDeliveryRequest(as(netUser2), req.ID), domain.ErrPermissionDenied)
	assert.ErrorIs(t, f.workflow.CancelDeliveryRequest(as(adminUser), req.ID), domain.ErrPermissionDenied)
	require.NoError(t, f.workflow.CancelDeliveryRequest(as(netUser), req.ID))

	assert.Empty(t, f.mirror.DeliveryRequests())
	assert.ErrorIs(t, f.workflow.CancelDeliveryRequest(as(netUser), req.ID), domain.ErrNotFound)

	_, err = f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	assert.NoError(t, err, "a cancelled request no longer blocks the item")
}

func TestConfirmReturn_TaskGone(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item, task := f.delivered(t, "S1")
	require.NoError(t, f.store.Delete(context.Background(), domain.CollectionTasks, task.ID))

	ret, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
	require.NoError(t, err)
	require.NoError(t, f.workflow.ConfirmReturnRequest(as(netUser), ret.ID))

	assert.Equal(t, domain.WarehouseNet, f.storedItem(t, item.ID).Warehouse)
}

// Every item with a task id is listed by that task, and every listed item
// points back, across a full delivery and return cycle.
func TestItemTaskConsistency(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	a, _ := f.delivered(t, "A")
	f.delivered(t, "B")

	ret, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: a.ID})
	require.NoError(t, err)
	require.NoError(t, f.workflow.ConfirmReturnRequest(as(netUser), ret.ID))

	tasks := map[string]domain.Task{}
	for _, task := range f.mirror.Tasks() {
		tasks[task.ID] = task
	}
	for _, item := range f.mirror.Items() {
		if id := item.AssignedTask(); id != "" {
			assert.Contains(t, tasks[id].AssignedItems, item.ID)
		}
	}
	for _, task := range tasks {
		for _, itemID := range task.AssignedItems {
			item, ok := f.mirror.Item(itemID)
			require.True(t, ok)
			assert.Equal(t, task.ID, item.AssignedTask())
		}
	}
}

func TestConcurrentConfirm_SingleWinner(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "HOT", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	var wins, refused atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			user := infraUser
			if n%2 == 1 {
				user = infraUser2
			}
			err := f.workflow.ConfirmDeliveryRequest(as(user), req.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrInvalidTransition):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), refused.Load())
	assert.Equal(t, []string{item.ID}, f.storedTask(t, task.ID).AssignedItems)
}

func TestIdempotencyKey(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")

	ctx := domain.ContextWithIdempotencyKey(as(netUser), "click-1")
	_, err := f.workflow.CreateDeliveryRequest(ctx, DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	_, err = f.workflow.CreateDeliveryRequest(ctx, DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Len(t, f.mirror.DeliveryRequests(), 1)
}

func TestIdempotencyKey_FailedAttemptCanBeRetried(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	ctx := domain.ContextWithIdempotencyKey(as(infraUser), "click-9")
	unlock, err := f.guard.Lock(context.Background(), requestKey(req.ID))
	require.NoError(t, err)
	err = f.workflow.ConfirmDeliveryRequest(ctx, req.ID)
	require.ErrorIs(t, err, domain.ErrBusy)
	require.NoError(t, unlock(context.Background()))

	require.NoError(t, f.workflow.ConfirmDeliveryRequest(ctx, req.ID))
	assert.Equal(t, domain.RequestStatusConfirmed, f.storedDelivery(t, req.ID).Status)

	err = f.workflow.ConfirmDeliveryRequest(ctx, req.ID)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest, "the key is spent once the command succeeds")
}

func TestIdempotencyKey_ReleasedAfterStoreFailure(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)

	ctx := domain.ContextWithIdempotencyKey(as(netUser), "save-1")
	damaged := domain.ConditionDamaged
	f.store.setFail(true)
	_, err := f.inventory.UpdateItem(ctx, item.ID, ItemPatch{Condition: &damaged})
	require.ErrorIs(t, err, domain.ErrStoreWrite)
	f.store.setFail(false)

	_, err = f.inventory.UpdateItem(ctx, item.ID, ItemPatch{Condition: &damaged})
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionDamaged, f.storedItem(t, item.ID).Condition)
}

func TestBusyEntityIsRejected(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)

	unlock, err := f.guard.Lock(context.Background(), requestKey(req.ID))
	require.NoError(t, err)
	err = f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID)
	assert.ErrorIs(t, err, domain.ErrBusy)
	require.NoError(t, unlock(context.Background()))

	require.NoError(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID))
}

func TestStoreFailureWritesNothing(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	require.NoError(t, err)
	logsBefore := len(f.mirror.Logs())

	f.store.setFail(true)
	err = f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID)
	require.ErrorIs(t, err, domain.ErrStoreWrite)
	f.store.setFail(false)

	assert.Equal(t, domain.RequestStatusPending, f.storedDelivery(t, req.ID).Status)
	assert.Equal(t, domain.WarehouseNet, f.storedItem(t, item.ID).Warehouse)
	assert.Empty(t, f.storedTask(t, task.ID).AssignedItems)
	assert.Len(t, f.mirror.Logs(), logsBefore, "no log entry without the change it describes")

	notices := f.notifier.all()
	require.NotEmpty(t, notices)
	last := notices[len(notices)-1]
	assert.Equal(t, infraUser, last.UserID)
	assert.Equal(t, domain.NoticeError, last.Level)
	assert.Equal(t, "confirm_delivery_request", last.Operation)

	require.NoError(t, f.workflow.ConfirmDeliveryRequest(as(infraUser), req.ID), "the lock was released after the failure")
}

func TestEveryTransitionLogsOnce(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	item := f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")
	before := len(f.mirror.Logs())

	steps := []func() error{
		func() error {
			_, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
			return err
		},
		func() error { return f.workflow.ConfirmDeliveryRequest(as(infraUser), f.mirror.DeliveryRequests()[0].ID) },
		func() error {
			_, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: item.ID})
			return err
		},
		func() error { return f.workflow.RejectReturnRequest(as(netUser), f.mirror.ReturnRequests()[0].ID) },
	}
	for i, step := range steps {
		require.NoError(t, step(), fmt.Sprintf("step %d", i))
		assert.Len(t, f.mirror.Logs(), before+i+1)
	}
	assert.Equal(t, []domain.LogType{
		domain.LogReturnRejected, domain.LogReturnRequest, domain.LogDeliveryConfirmed, domain.LogDeliveryRequest,
	}, f.logTypes()[:4])
}

func TestPendingRequests(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	deployed, _ := f.delivered(t, "OUT")
	waiting := f.item(t, "IN", domain.WarehouseNet, domain.ConditionAvailable)
	task := f.task(t, netUser, "T")

	delivery, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: waiting.ID, TaskID: task.ID})
	require.NoError(t, err)
	ret, err := f.workflow.CreateReturnRequest(as(infraUser), ReturnInput{ItemID: deployed.ID})
	require.NoError(t, err)

	net, err := f.workflow.PendingRequests(as(netUser2))
	require.NoError(t, err)
	assert.Empty(t, net.Deliveries, "other net users neither sent nor decide deliveries")
	require.Len(t, net.Returns, 1)
	assert.Equal(t, ret.ID, net.Returns[0].ID)

	sender, err := f.workflow.PendingRequests(as(netUser))
	require.NoError(t, err)
	require.Len(t, sender.Deliveries, 1)
	assert.Equal(t, delivery.ID, sender.Deliveries[0].ID)

	infra, err := f.workflow.PendingRequests(as(infraUser2))
	require.NoError(t, err)
	assert.Len(t, infra.Deliveries, 1)
	assert.Empty(t, infra.Returns)

	all, err := f.workflow.PendingRequests(as(adminUser))
	require.NoError(t, err)
	assert.Len(t, all.Deliveries, 1)
	assert.Len(t, all.Returns, 1)

	_, err = f.workflow.PendingRequests(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRequestListsNewestFirst(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	task := f.task(t, netUser, "T")
	var ids []string
	for _, serial := range []string{"A", "B", "C"} {
		item := f.item(t, serial, domain.WarehouseNet, domain.ConditionAvailable)
		req, err := f.workflow.CreateDeliveryRequest(as(netUser), DeliveryInput{ItemID: item.ID, TaskID: task.ID})
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	reqs, err := f.workflow.DeliveryRequests(as(infraUser))
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{reqs[0].ID, reqs[1].ID, reqs[2].ID})
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t, WorkflowOptions{})
	_, err := f.workflow.CreateDeliveryRequest(as(infraUser), DeliveryInput{ItemID: "x", TaskID: "y"})
	require.Error(t, err)
	f.item(t, "S1", domain.WarehouseNet, domain.ConditionAvailable)

	f.metrics.mu.Lock()
	defer f.metrics.mu.Unlock()
	assert.Equal(t, []bool{false}, f.metrics.outcomes["create_delivery_request"])
	assert.Equal(t, []bool{true}, f.metrics.outcomes["create_item"])
}
