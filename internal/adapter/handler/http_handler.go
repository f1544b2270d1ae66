package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/adapter/notify"
	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/service"
)

const (
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

// Services groups the application services exposed over the transports.
type Services struct {
	Inventory *service.InventoryService
	Tasks     *service.TaskService
	Transfers *service.TransferService
	Workflow  *service.WorkflowService
	Logs      *service.LogService
}

type HTTPHandler struct {
	svc     Services
	hub     *notify.Hub
	metrics http.Handler
	logger  *zap.Logger
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func NewHTTPHandler(svc Services, hub *notify.Hub, metrics http.Handler, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, hub: hub, metrics: metrics, logger: logger}
}

// Routes builds the REST router.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	r.Get("/health", h.HealthCheck)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(withCaller)

		r.Get("/events", h.Events)
		r.Get("/logs", h.ListLogs)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/{id}", h.GetItem)
			r.Patch("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Get("/{id}", h.GetTask)
			r.Post("/{id}/start", h.StartTask)
			r.Post("/{id}/submit", h.SubmitTask)
			r.Post("/{id}/close", h.CloseTask)
			r.Post("/{id}/cancel", h.CancelTask)
		})

		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", h.ListTransfers)
			r.Post("/", h.CreateTransfer)
			r.Post("/{id}/confirm", h.ConfirmTransfer)
			r.Delete("/{id}", h.CancelTransfer)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/pending", h.PendingRequests)

			r.Get("/delivery", h.ListDeliveryRequests)
			r.Post("/delivery", h.CreateDeliveryRequest)
			r.Post("/delivery/{id}/confirm", h.ConfirmDeliveryRequest)
			r.Post("/delivery/{id}/reject", h.RejectDeliveryRequest)
			r.Delete("/delivery/{id}", h.CancelDeliveryRequest)

			r.Get("/return", h.ListReturnRequests)
			r.Post("/return", h.CreateReturnRequest)
			r.Post("/return/{id}/confirm", h.ConfirmReturnRequest)
			r.Post("/return/{id}/reject", h.RejectReturnRequest)
			r.Delete("/return/{id}", h.CancelReturnRequest)
		})
	})
	return r
}

// withCaller moves the caller id and idempotency key from headers into
// the request context.
func withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(headerUserID); id != "" {
			ctx = domain.ContextWithUserID(ctx, id)
		}
		if key := r.Header.Get(headerIdempotencyKey); key != "" {
			ctx = domain.ContextWithIdempotencyKey(ctx, key)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HTTPHandler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Events streams render and notice events as server-sent events.
func (h *HTTPHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, domain.ErrUnauthenticated)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *HTTPHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.svc.Logs.Logs(r.Context(), limit)
	respond(w, http.StatusOK, logs, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBusy),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrOptimisticLock):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

func respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, status, data)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validationf("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
