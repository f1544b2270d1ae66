package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/service"
)

type CreateItemHTTPRequest struct {
	Serial      string           `json:"serial"`
	Name        string           `json:"name"`
	Warehouse   domain.Warehouse `json:"warehouse"`
	Condition   domain.Condition `json:"condition"`
	Source      string           `json:"source"`
	Description string           `json:"description"`
}

type UpdateItemHTTPRequest struct {
	Name        *string           `json:"name"`
	Condition   *domain.Condition `json:"condition"`
	Source      *string           `json:"source"`
	Description *string           `json:"description"`
}

type CreateTaskHTTPRequest struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Priority    domain.Priority `json:"priority"`
	Deadline    *time.Time      `json:"deadline"`
}

type CreateTransferHTTPRequest struct {
	ItemIDs       []string         `json:"itemIds"`
	FromWarehouse domain.Warehouse `json:"fromWarehouse"`
	ToWarehouse   domain.Warehouse `json:"toWarehouse"`
	Notes         string           `json:"notes"`
}

type CreateDeliveryHTTPRequest struct {
	ItemID string `json:"itemId"`
	TaskID string `json:"taskId"`
	Notes  string `json:"notes"`
}

type CreateReturnHTTPRequest struct {
	ItemID string `json:"itemId"`
	Notes  string `json:"notes"`
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Inventory.VisibleItems(r.Context())
	respond(w, http.StatusOK, items, err)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.svc.Inventory.Item(r.Context(), chi.URLParam(r, "id"))
	respond(w, http.StatusOK, item, err)
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.Inventory.CreateItem(r.Context(), service.ItemInput{
		Serial:      req.Serial,
		Name:        req.Name,
		Warehouse:   req.Warehouse,
		Condition:   req.Condition,
		Source:      req.Source,
		Description: req.Description,
	})
	respond(w, http.StatusCreated, item, err)
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.svc.Inventory.UpdateItem(r.Context(), chi.URLParam(r, "id"), service.ItemPatch{
		Name:        req.Name,
		Condition:   req.Condition,
		Source:      req.Source,
		Description: req.Description,
	})
	respond(w, http.StatusOK, item, err)
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Inventory.DeleteItem(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Tasks.Tasks(r.Context())
	respond(w, http.StatusOK, tasks, err)
}

func (h *HTTPHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.Tasks.Task(r.Context(), chi.URLParam(r, "id"))
	respond(w, http.StatusOK, task, err)
}

func (h *HTTPHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.svc.Tasks.CreateTask(r.Context(), service.TaskInput{
		Name:        req.Name,
		Type:        req.Type,
		Description: req.Description,
		Location:    req.Location,
		Priority:    req.Priority,
		Deadline:    req.Deadline,
	})
	respond(w, http.StatusCreated, task, err)
}

func (h *HTTPHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Tasks.StartTask(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Tasks.SubmitTask(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) CloseTask(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Tasks.CloseTask(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Tasks.CancelTask(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.svc.Transfers.Transfers(r.Context())
	respond(w, http.StatusOK, transfers, err)
}

func (h *HTTPHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	transfer, err := h.svc.Transfers.CreateTransfer(r.Context(), service.TransferInput{
		ItemIDs:       req.ItemIDs,
		FromWarehouse: req.FromWarehouse,
		ToWarehouse:   req.ToWarehouse,
		Notes:         req.Notes,
	})
	respond(w, http.StatusCreated, transfer, err)
}

func (h *HTTPHandler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Transfers.ConfirmTransfer(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Transfers.CancelTransfer(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.Workflow.PendingRequests(r.Context())
	respond(w, http.StatusOK, pending, err)
}

func (h *HTTPHandler) ListDeliveryRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.Workflow.DeliveryRequests(r.Context())
	respond(w, http.StatusOK, reqs, err)
}

func (h *HTTPHandler) CreateDeliveryRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.svc.Workflow.CreateDeliveryRequest(r.Context(), service.DeliveryInput{
		ItemID: req.ItemID,
		TaskID: req.TaskID,
		Notes:  req.Notes,
	})
	respond(w, http.StatusCreated, created, err)
}

func (h *HTTPHandler) ConfirmDeliveryRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.ConfirmDeliveryRequest(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) RejectDeliveryRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.RejectDeliveryRequest(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) CancelDeliveryRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.CancelDeliveryRequest(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) ListReturnRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.Workflow.ReturnRequests(r.Context())
	respond(w, http.StatusOK, reqs, err)
}

func (h *HTTPHandler) CreateReturnRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateReturnHTTPRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.svc.Workflow.CreateReturnRequest(r.Context(), service.ReturnInput{
		ItemID: req.ItemID,
		Notes:  req.Notes,
	})
	respond(w, http.StatusCreated, created, err)
}

func (h *HTTPHandler) ConfirmReturnRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.ConfirmReturnRequest(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) RejectReturnRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.RejectReturnRequest(r.Context(), chi.URLParam(r, "id")))
}

func (h *HTTPHandler) CancelReturnRequest(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusNoContent, nil, h.svc.Workflow.CancelReturnRequest(r.Context(), chi.URLParam(r, "id")))
}
