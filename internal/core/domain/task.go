package domain

import (
	"slices"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending             TaskStatus = "pending"
	TaskStatusInProgress          TaskStatus = "in-progress"
	TaskStatusWaitingConfirmation TaskStatus = "waiting-confirmation"
	TaskStatusCompleted           TaskStatus = "completed"
	TaskStatusCancelled           TaskStatus = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

type Task struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Type               string     `json:"type,omitempty"`
	Description        string     `json:"description,omitempty"`
	Location           string     `json:"location,omitempty"`
	Priority           Priority   `json:"priority"`
	Status             TaskStatus `json:"status"`
	Deadline           *time.Time `json:"deadline,omitempty"`
	CreatedDate        time.Time  `json:"createdDate"`
	CreatedBy          string     `json:"createdBy"`
	CreatedByWarehouse Warehouse  `json:"createdByWarehouse"`
	AssignedItems      []string   `json:"assignedItems"`
	CompletedItems     []string   `json:"completedItems,omitempty"`
	CompletedDate      *time.Time `json:"completedDate,omitempty"`
	CompletedBy        string     `json:"completedBy,omitempty"`
}

// AcceptsAssignment reports whether items may still be delivered to the task.
func (t Task) AcceptsAssignment() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}

func (t Task) Closed() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

func (t Task) HasItem(itemID string) bool {
	return slices.Contains(t.AssignedItems, itemID)
}

// AssignItem adds the item to the assigned set. It returns false when the
// item was already present.
func (t *Task) AssignItem(itemID string) bool {
	if t.HasItem(itemID) {
		return false
	}
	t.AssignedItems = append(t.AssignedItems, itemID)
	return true
}

// ReleaseItem removes the item from the assigned set and records it in
// CompletedItems. It returns false when the item was not assigned.
func (t *Task) ReleaseItem(itemID string) bool {
	idx := slices.Index(t.AssignedItems, itemID)
	if idx < 0 {
		return false
	}
	t.AssignedItems = slices.Delete(t.AssignedItems, idx, idx+1)
	if !slices.Contains(t.CompletedItems, itemID) {
		t.CompletedItems = append(t.CompletedItems, itemID)
	}
	return true
}

// Advance moves the task along pending -> in-progress -> waiting-confirmation.
func (t *Task) Advance(to TaskStatus) error {
	switch {
	case t.Status == TaskStatusPending && to == TaskStatusInProgress:
	case t.Status == TaskStatusInProgress && to == TaskStatusWaitingConfirmation:
	default:
		return invalidTransition("task", string(t.Status), string(to))
	}
	t.Status = to
	return nil
}

func (t *Task) Complete(actor string, at time.Time) error {
	if t.Closed() {
		return invalidTransition("task", string(t.Status), string(TaskStatusCompleted))
	}
	t.Status = TaskStatusCompleted
	t.CompletedBy = actor
	t.CompletedDate = &at
	return nil
}

func (t *Task) Cancel() error {
	if t.Status != TaskStatusPending && t.Status != TaskStatusInProgress {
		return invalidTransition("task", string(t.Status), string(TaskStatusCancelled))
	}
	t.Status = TaskStatusCancelled
	return nil
}
