package domain

type Warehouse string

const (
	WarehouseNet            Warehouse = "net"
	WarehouseInfrastructure Warehouse = "infrastructure"
)

func (w Warehouse) Valid() bool {
	return w == WarehouseNet || w == WarehouseInfrastructure
}

type Condition string

const (
	ConditionAvailable   Condition = "available"
	ConditionInUse       Condition = "in-use"
	ConditionMaintenance Condition = "maintenance"
	ConditionDamaged     Condition = "damaged"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionAvailable, ConditionInUse, ConditionMaintenance, ConditionDamaged:
		return true
	}
	return false
}

// Collection names a top-level document collection in the store.
type Collection string

const (
	CollectionItems            Collection = "inventory"
	CollectionTasks            Collection = "tasks"
	CollectionTransfers        Collection = "transfers"
	CollectionDeliveryRequests Collection = "deliveryRequests"
	CollectionReturnRequests   Collection = "returnRequests"
	CollectionLogs             Collection = "logs"
)

// Collections lists every collection the service mirrors.
var Collections = []Collection{
	CollectionItems,
	CollectionTasks,
	CollectionTransfers,
	CollectionDeliveryRequests,
	CollectionReturnRequests,
	CollectionLogs,
}
