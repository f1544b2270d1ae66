package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/permission"
)

// TransferService moves batches of items between warehouses without the
// per-item request workflow.
type TransferService struct {
	base
}

func NewTransferService(d Deps) *TransferService {
	return &TransferService{base: newBase(d)}
}

type TransferInput struct {
	ItemIDs       []string
	FromWarehouse domain.Warehouse
	ToWarehouse   domain.Warehouse
	Notes         string
}

func (s *TransferService) CreateTransfer(ctx context.Context, in TransferInput) (domain.Transfer, error) {
	var created domain.Transfer
	err := s.run(ctx, "create_transfer", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanCreateTransfer(p) {
			return denied("create transfer")
		}
		if !in.FromWarehouse.Valid() || !in.ToWarehouse.Valid() {
			return domain.Validationf("unknown warehouse")
		}
		if in.FromWarehouse == in.ToWarehouse {
			return domain.Validationf("source and destination are both %s", in.FromWarehouse)
		}
		ids := slices.Compact(slices.Sorted(slices.Values(in.ItemIDs)))
		if len(ids) == 0 || ids[0] == "" {
			return domain.Validationf("at least one item is required")
		}

		keys := make([]string, 0, len(ids))
		for _, id := range ids {
			keys = append(keys, itemKey(id))
		}
		unlock, err := s.lock(ctx, keys...)
		if err != nil {
			return err
		}
		defer unlock()

		pending, err := s.pendingRequests(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			item, _, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, id)
			if err != nil {
				return err
			}
			if item.Warehouse != in.FromWarehouse {
				return domain.Validationf("item %s is not in %s", item.Serial, in.FromWarehouse)
			}
			if kind := pending[id]; kind != "" {
				return domain.Validationf("item %s has a pending %s request", item.Serial, kind)
			}
		}

		created = domain.Transfer{
			ID:            s.NewID(),
			ItemIDs:       ids,
			FromWarehouse: in.FromWarehouse,
			ToWarehouse:   in.ToWarehouse,
			Status:        domain.TransferStatusPending,
			CreatedBy:     p.ID,
			CreatedDate:   s.Now(),
			Notes:         strings.TrimSpace(in.Notes),
		}
		cs := &changeSet{}
		cs.create(domain.CollectionTransfers, created.ID, created)
		cs.log(s.audit.Entry(domain.LogTransferCreated, "Transfer created",
			fmt.Sprintf("%d item(s) from %s to %s", len(ids), created.FromWarehouse, created.ToWarehouse), p))
		return s.commit(ctx, cs)
	})
	return created, err
}

// ConfirmTransfer moves every item of the transfer. Items arriving in net
// leave their task.
func (s *TransferService) ConfirmTransfer(ctx context.Context, id string) error {
	return s.run(ctx, "confirm_transfer", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlockTransfer, err := s.lock(ctx, transferKey(id))
		if err != nil {
			return err
		}
		defer unlockTransfer()

		transfer, transferVersion, err := load[domain.Transfer](ctx, s.Store, domain.CollectionTransfers, id)
		if err != nil {
			return err
		}
		if !permission.CanConfirmTransfer(p, transfer) {
			return denied("confirm transfer")
		}
		if !transfer.Pending() {
			return fmt.Errorf("%w: transfer is %s", domain.ErrInvalidTransition, transfer.Status)
		}

		keys := make([]string, 0, len(transfer.ItemIDs))
		for _, itemID := range transfer.ItemIDs {
			keys = append(keys, itemKey(itemID))
		}
		unlockItems, err := s.lock(ctx, keys...)
		if err != nil {
			return err
		}
		defer unlockItems()

		type loaded struct {
			item    domain.InventoryItem
			version int64
		}
		pending, err := s.pendingRequests(ctx)
		if err != nil {
			return err
		}
		items := make([]loaded, 0, len(transfer.ItemIDs))
		var taskIDs []string
		for _, itemID := range transfer.ItemIDs {
			item, version, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, itemID)
			if err != nil {
				return err
			}
			if item.Warehouse != transfer.FromWarehouse {
				return domain.Validationf("item %s is no longer in %s", item.Serial, transfer.FromWarehouse)
			}
			if kind := pending[itemID]; kind != "" {
				return domain.Validationf("item %s has a pending %s request", item.Serial, kind)
			}
			items = append(items, loaded{item: item, version: version})
			if transfer.ToWarehouse == domain.WarehouseNet && item.AssignedTask() != "" {
				taskIDs = append(taskIDs, item.AssignedTask())
			}
		}
		taskIDs = slices.Compact(slices.Sorted(slices.Values(taskIDs)))

		tasks := make(map[string]*domain.Task, len(taskIDs))
		versions := make(map[string]int64, len(taskIDs))
		if len(taskIDs) > 0 {
			taskKeys := make([]string, 0, len(taskIDs))
			for _, taskID := range taskIDs {
				taskKeys = append(taskKeys, taskKey(taskID))
			}
			unlockTasks, err := s.lock(ctx, taskKeys...)
			if err != nil {
				return err
			}
			defer unlockTasks()
			for _, taskID := range taskIDs {
				task, version, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, taskID)
				if isNotFound(err) {
					continue
				}
				if err != nil {
					return err
				}
				tasks[taskID] = &task
				versions[taskID] = version
			}
		}

		cs := &changeSet{}
		changed := map[string]bool{}
		for _, l := range items {
			item := l.item
			item.Warehouse = transfer.ToWarehouse
			if transfer.ToWarehouse == domain.WarehouseNet {
				if task, ok := tasks[item.AssignedTask()]; ok && task.ReleaseItem(item.ID) {
					changed[task.ID] = true
				}
				item.Detach()
			}
			cs.put(domain.CollectionItems, item.ID, item, l.version)
		}
		for _, taskID := range taskIDs {
			if changed[taskID] {
				cs.put(domain.CollectionTasks, taskID, tasks[taskID], versions[taskID])
			}
		}
		if err := transfer.Confirm(p.ID, s.Now()); err != nil {
			return err
		}
		cs.put(domain.CollectionTransfers, transfer.ID, transfer, transferVersion)
		cs.log(s.audit.Entry(domain.LogTransferConfirmed, "Transfer confirmed",
			fmt.Sprintf("%d item(s) moved from %s to %s", len(items), transfer.FromWarehouse, transfer.ToWarehouse), p))
		return s.commit(ctx, cs)
	})
}

func (s *TransferService) CancelTransfer(ctx context.Context, id string) error {
	return s.run(ctx, "cancel_transfer", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, transferKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		transfer, version, err := load[domain.Transfer](ctx, s.Store, domain.CollectionTransfers, id)
		if err != nil {
			return err
		}
		if !permission.CanCancelTransfer(p, transfer) {
			return denied("cancel a transfer created by someone else")
		}
		if !transfer.Pending() {
			return fmt.Errorf("%w: transfer is %s", domain.ErrInvalidTransition, transfer.Status)
		}
		cs := &changeSet{}
		cs.remove(domain.CollectionTransfers, transfer.ID, version)
		cs.log(s.audit.Entry(domain.LogTransferCancelled, "Transfer cancelled",
			fmt.Sprintf("Transfer of %d item(s) from %s to %s cancelled", len(transfer.ItemIDs), transfer.FromWarehouse, transfer.ToWarehouse), p))
		return s.commit(ctx, cs)
	})
}

func (s *TransferService) Transfers(ctx context.Context) ([]domain.Transfer, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Transfer{}
	for _, t := range s.Mirror.Transfers() {
		if permission.CanConfirmTransfer(p, t) || t.CreatedBy == p.ID {
			out = append(out, t)
		}
	}
	return out, nil
}
