package domain

import "time"

type LogType string

const (
	LogDeliveryRequest   LogType = "delivery-request"
	LogDeliveryConfirmed LogType = "delivery-confirmed"
	LogDeliveryRejected  LogType = "delivery-rejected"
	LogDeliveryCancelled LogType = "delivery-cancelled"
	LogReturnRequest     LogType = "return-request"
	LogReturnConfirmed   LogType = "return-confirmed"
	LogReturnRejected    LogType = "return-rejected"
	LogReturnCancelled   LogType = "return-cancelled"

	LogTaskCreated   LogType = "task-created"
	LogTaskStarted   LogType = "task-started"
	LogTaskSubmitted LogType = "task-submitted"
	LogTaskCompleted LogType = "task-completed"
	LogTaskCancelled LogType = "task-cancelled"

	LogItemCreated LogType = "item-created"
	LogItemUpdated LogType = "item-updated"
	LogItemDeleted LogType = "item-deleted"

	LogTransferCreated   LogType = "transfer-created"
	LogTransferConfirmed LogType = "transfer-confirmed"
	LogTransferCancelled LogType = "transfer-cancelled"
)

// LogEntry is an append-only activity record.
type LogEntry struct {
	ID        string    `json:"id"`
	Type      LogType   `json:"type"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
}
