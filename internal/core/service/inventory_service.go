package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/permission"
)

// InventoryService owns item records. Warehouse and task assignment only
// change through the request and transfer workflows.
type InventoryService struct {
	base
}

func NewInventoryService(d Deps) *InventoryService {
	return &InventoryService{base: newBase(d)}
}

type ItemInput struct {
	Serial      string
	Name        string
	Warehouse   domain.Warehouse
	Condition   domain.Condition
	Source      string
	Description string
}

// ItemPatch carries the editable fields. Nil fields are left as they are.
type ItemPatch struct {
	Name        *string
	Condition   *domain.Condition
	Source      *string
	Description *string
}

func serialKey(serial string) string { return "serial:" + strings.ToLower(serial) }

func (s *InventoryService) CreateItem(ctx context.Context, in ItemInput) (domain.InventoryItem, error) {
	var created domain.InventoryItem
	err := s.run(ctx, "create_item", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !in.Warehouse.Valid() {
			return domain.Validationf("unknown warehouse %q", in.Warehouse)
		}
		if !permission.CanCreateItem(p, in.Warehouse) {
			return denied("add items to " + string(in.Warehouse))
		}
		serial, name := strings.TrimSpace(in.Serial), strings.TrimSpace(in.Name)
		if serial == "" || name == "" {
			return domain.Validationf("serial and name are required")
		}
		condition := in.Condition
		if condition == "" {
			condition = domain.ConditionAvailable
		}
		if !condition.Valid() {
			return domain.Validationf("unknown condition %q", condition)
		}

		unlock, err := s.lock(ctx, serialKey(serial))
		if err != nil {
			return err
		}
		defer unlock()

		items, err := listAll[domain.InventoryItem](ctx, s.Store, domain.CollectionItems)
		if err != nil {
			return err
		}
		for _, it := range items {
			if strings.EqualFold(it.Serial, serial) {
				return domain.Validationf("serial %s already exists", serial)
			}
		}

		created = domain.InventoryItem{
			ID:          s.NewID(),
			Serial:      serial,
			Name:        name,
			Warehouse:   in.Warehouse,
			Condition:   condition,
			Source:      in.Source,
			DateAdded:   s.Now(),
			Description: in.Description,
		}
		cs := &changeSet{}
		cs.create(domain.CollectionItems, created.ID, created)
		cs.log(s.audit.Entry(domain.LogItemCreated, "Item added",
			fmt.Sprintf("Item %s (%s) added to %s", created.Name, created.Serial, created.Warehouse), p))
		return s.commit(ctx, cs)
	})
	return created, err
}

func (s *InventoryService) UpdateItem(ctx context.Context, id string, patch ItemPatch) (domain.InventoryItem, error) {
	var updated domain.InventoryItem
	err := s.run(ctx, "update_item", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, itemKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		item, version, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, id)
		if err != nil {
			return err
		}
		if !permission.CanEditItem(p, item) {
			return denied("edit items in " + string(item.Warehouse))
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return domain.Validationf("name cannot be empty")
			}
			item.Name = name
		}
		if patch.Condition != nil && *patch.Condition != item.Condition {
			if !patch.Condition.Valid() {
				return domain.Validationf("unknown condition %q", *patch.Condition)
			}
			// A pending request captured the current condition.
			kind, err := s.pendingRequestFor(ctx, item.ID)
			if err != nil {
				return err
			}
			if kind != "" {
				return domain.Validationf("item %s has a pending %s request", item.Serial, kind)
			}
			item.Condition = *patch.Condition
		}
		if patch.Source != nil {
			item.Source = *patch.Source
		}
		if patch.Description != nil {
			item.Description = *patch.Description
		}

		updated = item
		cs := &changeSet{}
		cs.put(domain.CollectionItems, item.ID, item, version)
		cs.log(s.audit.Entry(domain.LogItemUpdated, "Item updated",
			fmt.Sprintf("Item %s (%s) updated", item.Name, item.Serial), p))
		return s.commit(ctx, cs)
	})
	return updated, err
}

func (s *InventoryService) DeleteItem(ctx context.Context, id string) error {
	return s.run(ctx, "delete_item", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, itemKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		item, version, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, id)
		if err != nil {
			return err
		}
		if !permission.CanDeleteItem(p, item) {
			return denied("delete items in " + string(item.Warehouse))
		}
		if item.AssignedTask() != "" {
			return domain.Validationf("item %s is assigned to a task", item.Serial)
		}
		kind, err := s.pendingRequestFor(ctx, item.ID)
		if err != nil {
			return err
		}
		if kind != "" {
			return domain.Validationf("item %s has a pending %s request", item.Serial, kind)
		}
		transferID, err := s.pendingTransferFor(ctx, item.ID)
		if err != nil {
			return err
		}
		if transferID != "" {
			return domain.Validationf("item %s is part of pending transfer %s", item.Serial, transferID)
		}

		cs := &changeSet{}
		cs.remove(domain.CollectionItems, item.ID, version)
		cs.log(s.audit.Entry(domain.LogItemDeleted, "Item deleted",
			fmt.Sprintf("Item %s (%s) removed from %s", item.Name, item.Serial, item.Warehouse), p))
		return s.commit(ctx, cs)
	})
}

// VisibleItems lists the items the caller may see: its own warehouse plus
// items heading its way through a pending request.
func (s *InventoryService) VisibleItems(ctx context.Context) ([]domain.InventoryItem, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	pending := s.Mirror.PendingMoves()
	out := []domain.InventoryItem{}
	for _, item := range s.Mirror.Items() {
		if permission.CanViewItem(p, item, pending) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *InventoryService) Item(ctx context.Context, id string) (domain.InventoryItem, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item, ok := s.Mirror.Item(id)
	if !ok {
		return domain.InventoryItem{}, domain.NotFoundError{Collection: domain.CollectionItems, ID: id}
	}
	if !permission.CanViewItem(p, item, s.Mirror.PendingMoves()) {
		return domain.InventoryItem{}, denied("view item")
	}
	return item, nil
}
