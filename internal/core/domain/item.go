package domain

import "time"

type InventoryItem struct {
	ID          string    `json:"id"`
	Serial      string    `json:"serial"`
	Name        string    `json:"name"`
	Warehouse   Warehouse `json:"warehouse"`
	Condition   Condition `json:"condition"`
	Source      string    `json:"source,omitempty"`
	DateAdded   time.Time `json:"dateAdded"`
	TaskID      *string   `json:"taskId"`
	Description string    `json:"description,omitempty"`
}

// Snapshot captures the descriptive fields a request keeps for history.
func (i InventoryItem) Snapshot() ItemSnapshot {
	return ItemSnapshot{Serial: i.Serial, Name: i.Name}
}

func (i InventoryItem) AssignedTask() string {
	if i.TaskID == nil {
		return ""
	}
	return *i.TaskID
}

func (i *InventoryItem) AssignTo(taskID string) {
	id := taskID
	i.TaskID = &id
}

func (i *InventoryItem) Detach() {
	i.TaskID = nil
}

// ItemSnapshot is the immutable copy of an item's identity taken when a
// request is created. It does not follow later renames of the live item.
type ItemSnapshot struct {
	Serial string `json:"itemSerial"`
	Name   string `json:"itemName"`
}
