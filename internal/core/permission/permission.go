// Package permission decides what a principal may do. Every function is a
// pure predicate; callers turn a false result into domain.ErrPermissionDenied.
package permission

import "github.com/rl1809/warehouse-flow/internal/core/domain"

func CanManageWarehouse(p domain.Principal, w domain.Warehouse) bool {
	if !p.Authenticated() {
		return false
	}
	if p.Admin {
		return true
	}
	return p.Warehouse == w
}

// CanViewWarehouse has no separate read-only tier.
func CanViewWarehouse(p domain.Principal, w domain.Warehouse) bool {
	return CanManageWarehouse(p, w)
}

func CanCreateItem(p domain.Principal, w domain.Warehouse) bool {
	return CanManageWarehouse(p, w)
}

func CanEditItem(p domain.Principal, item domain.InventoryItem) bool {
	return CanManageWarehouse(p, item.Warehouse)
}

func CanDeleteItem(p domain.Principal, item domain.InventoryItem) bool {
	return CanManageWarehouse(p, item.Warehouse)
}

// CanViewItem also lets the receiving side see an item that a pending
// request is about to move into its warehouse.
func CanViewItem(p domain.Principal, item domain.InventoryItem, pending []domain.PendingMove) bool {
	if CanViewWarehouse(p, item.Warehouse) {
		return true
	}
	if !p.Authenticated() {
		return false
	}
	for _, m := range pending {
		if m.ItemID == item.ID && m.To == p.Warehouse {
			return true
		}
	}
	return false
}

func CanCreateTask(p domain.Principal) bool {
	return p.Authenticated()
}

func CanCreateTransfer(p domain.Principal) bool {
	return p.Authenticated()
}

func CanConfirmTransfer(p domain.Principal, t domain.Transfer) bool {
	if !p.Authenticated() {
		return false
	}
	if p.Admin {
		return true
	}
	return p.Warehouse == t.FromWarehouse || p.Warehouse == t.ToWarehouse
}

// CanCloseTask is a literal creator match; admins get no override.
func CanCloseTask(p domain.Principal, t domain.Task) bool {
	return p.Authenticated() && p.ID == t.CreatedBy
}

// CanCancelTask is limited to the creator, like closing.
func CanCancelTask(p domain.Principal, t domain.Task) bool {
	return CanCloseTask(p, t)
}

// CanProgressTask covers the intermediate status moves.
func CanProgressTask(p domain.Principal, t domain.Task) bool {
	return p.Authenticated() && (p.Admin || p.ID == t.CreatedBy)
}

func CanCancelTransfer(p domain.Principal, t domain.Transfer) bool {
	return p.Authenticated() && p.ID == t.CreatedBy
}

// CanRequestDelivery is held by the net side, which gives the item away.
func CanRequestDelivery(p domain.Principal) bool {
	return CanManageWarehouse(p, domain.WarehouseNet)
}

// CanRequestReturn is held by the infrastructure side, which holds the item.
func CanRequestReturn(p domain.Principal) bool {
	return CanManageWarehouse(p, domain.WarehouseInfrastructure)
}

// CanDecideDelivery is held by the infrastructure side, which receives the item.
func CanDecideDelivery(p domain.Principal) bool {
	return CanManageWarehouse(p, domain.WarehouseInfrastructure)
}

// CanDecideReturn is held by the net side, which receives the item.
func CanDecideReturn(p domain.Principal) bool {
	return CanManageWarehouse(p, domain.WarehouseNet)
}

// CanCancelRequest is limited to whoever raised the request.
func CanCancelRequest(p domain.Principal, r domain.Request) bool {
	return p.Authenticated() && p.ID == r.RequestedBy
}
