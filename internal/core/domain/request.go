package domain

import "time"

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusConfirmed RequestStatus = "confirmed"
	RequestStatusRejected  RequestStatus = "rejected"
)

// Request holds the fields shared by delivery and return requests.
// Status only ever moves from pending to confirmed or rejected; a
// cancelled request is deleted rather than marked.
type Request struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	ItemSnapshot
	TaskID        string        `json:"taskId,omitempty"`
	TaskName      string        `json:"taskName,omitempty"`
	Status        RequestStatus `json:"status"`
	RequestedBy   string        `json:"requestedBy"`
	RequestedDate time.Time     `json:"requestedDate"`
	ConfirmedBy   string        `json:"confirmedBy,omitempty"`
	ConfirmedDate *time.Time    `json:"confirmedDate,omitempty"`
	RejectedBy    string        `json:"rejectedBy,omitempty"`
	RejectedDate  *time.Time    `json:"rejectedDate,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

func (r Request) Pending() bool {
	return r.Status == RequestStatusPending
}

func (r *Request) Confirm(actor string, at time.Time) error {
	if !r.Pending() {
		return invalidTransition("request", string(r.Status), string(RequestStatusConfirmed))
	}
	r.Status = RequestStatusConfirmed
	r.ConfirmedBy = actor
	r.ConfirmedDate = &at
	return nil
}

func (r *Request) Reject(actor string, at time.Time) error {
	if !r.Pending() {
		return invalidTransition("request", string(r.Status), string(RequestStatusRejected))
	}
	r.Status = RequestStatusRejected
	r.RejectedBy = actor
	r.RejectedDate = &at
	return nil
}

// DeliveryRequest offers a net item to an infrastructure task.
type DeliveryRequest struct {
	Request
}

func (d DeliveryRequest) Move() PendingMove {
	return PendingMove{ItemID: d.ItemID, To: WarehouseInfrastructure}
}

// ReturnRequest sends an infrastructure item back to net. ItemCondition is
// the condition the item had when the request was raised.
type ReturnRequest struct {
	Request
	ItemCondition Condition `json:"itemCondition"`
}

func (r ReturnRequest) Move() PendingMove {
	return PendingMove{ItemID: r.ItemID, To: WarehouseNet}
}

// PendingMove is an item movement awaiting confirmation by the receiving side.
type PendingMove struct {
	ItemID string
	To     Warehouse
}
