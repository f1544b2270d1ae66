package domain

import "time"

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusConfirmed TransferStatus = "confirmed"
)

// Transfer moves a batch of items between warehouses in one confirmation.
type Transfer struct {
	ID            string         `json:"id"`
	ItemIDs       []string       `json:"itemIds"`
	FromWarehouse Warehouse      `json:"fromWarehouse"`
	ToWarehouse   Warehouse      `json:"toWarehouse"`
	Status        TransferStatus `json:"status"`
	CreatedBy     string         `json:"createdBy"`
	CreatedDate   time.Time      `json:"createdDate"`
	ConfirmedBy   string         `json:"confirmedBy,omitempty"`
	ConfirmedDate *time.Time     `json:"confirmedDate,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

func (t Transfer) Pending() bool {
	return t.Status == TransferStatusPending
}

func (t *Transfer) Confirm(actor string, at time.Time) error {
	if !t.Pending() {
		return invalidTransition("transfer", string(t.Status), string(TransferStatusConfirmed))
	}
	t.Status = TransferStatusConfirmed
	t.ConfirmedBy = actor
	t.ConfirmedDate = &at
	return nil
}
