package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/permission"
)

type WorkflowOptions struct {
	// AllowDuplicatePending lets several pending requests reference one item.
	AllowDuplicatePending bool
}

// WorkflowService moves items between the net and infrastructure
// warehouses through delivery and return requests.
type WorkflowService struct {
	base
	opts WorkflowOptions
}

func NewWorkflowService(d Deps, opts WorkflowOptions) *WorkflowService {
	return &WorkflowService{base: newBase(d), opts: opts}
}

type DeliveryInput struct {
	ItemID string
	TaskID string
	Notes  string
}

type ReturnInput struct {
	ItemID string
	Notes  string
}

// PendingRequests holds the pending requests relevant to one principal.
type PendingRequests struct {
	Deliveries []domain.DeliveryRequest `json:"deliveries"`
	Returns    []domain.ReturnRequest   `json:"returns"`
}

func (s *WorkflowService) CreateDeliveryRequest(ctx context.Context, in DeliveryInput) (domain.DeliveryRequest, error) {
	var created domain.DeliveryRequest
	err := s.run(ctx, "create_delivery_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanRequestDelivery(p) {
			return denied("request delivery")
		}
		if in.ItemID == "" || in.TaskID == "" {
			return domain.Validationf("item and task are required")
		}

		unlock, err := s.lock(ctx, itemKey(in.ItemID), taskKey(in.TaskID))
		if err != nil {
			return err
		}
		defer unlock()

		item, _, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, in.ItemID)
		if err != nil {
			return err
		}
		if item.Warehouse != domain.WarehouseNet {
			return domain.Validationf("item %s is not in the net warehouse", item.Serial)
		}
		if item.Condition != domain.ConditionAvailable {
			return domain.Validationf("item %s is %s, only available items can be delivered", item.Serial, item.Condition)
		}
		task, _, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, in.TaskID)
		if err != nil {
			return err
		}
		if !task.AcceptsAssignment() {
			return domain.Validationf("task %q is %s", task.Name, task.Status)
		}
		if err := s.checkNoPending(ctx, item); err != nil {
			return err
		}

		created = domain.DeliveryRequest{Request: domain.Request{
			ID:            s.NewID(),
			ItemID:        item.ID,
			ItemSnapshot:  item.Snapshot(),
			TaskID:        task.ID,
			TaskName:      task.Name,
			Status:        domain.RequestStatusPending,
			RequestedBy:   p.ID,
			RequestedDate: s.Now(),
			Notes:         strings.TrimSpace(in.Notes),
		}}

		cs := &changeSet{}
		cs.create(domain.CollectionDeliveryRequests, created.ID, created)
		cs.log(s.audit.Entry(domain.LogDeliveryRequest, "Delivery requested",
			fmt.Sprintf("Item %s (%s) requested for task %q", item.Name, item.Serial, task.Name), p))
		return s.commit(ctx, cs)
	})
	return created, err
}

func (s *WorkflowService) ConfirmDeliveryRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "confirm_delivery_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanDecideDelivery(p) {
			return denied("confirm delivery")
		}

		unlockReq, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlockReq()

		req, reqVersion, err := load[domain.DeliveryRequest](ctx, s.Store, domain.CollectionDeliveryRequests, requestID)
		if err != nil {
			return err
		}
		if !req.Pending() {
			return fmt.Errorf("%w: delivery request is %s", domain.ErrInvalidTransition, req.Status)
		}

		unlock, err := s.lock(ctx, itemKey(req.ItemID), taskKey(req.TaskID))
		if err != nil {
			return err
		}
		defer unlock()

		item, itemVersion, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, req.ItemID)
		if err != nil {
			return err
		}
		if item.Warehouse != domain.WarehouseNet {
			return domain.Validationf("item %s already left the net warehouse", item.Serial)
		}
		task, taskVersion, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, req.TaskID)
		if err != nil {
			return err
		}
		if !task.AcceptsAssignment() {
			return domain.Validationf("task %q is %s", task.Name, task.Status)
		}

		now := s.Now()
		item.Warehouse = domain.WarehouseInfrastructure
		item.Condition = domain.ConditionInUse
		item.AssignTo(task.ID)
		if err := req.Confirm(p.ID, now); err != nil {
			return err
		}

		cs := &changeSet{}
		cs.put(domain.CollectionItems, item.ID, item, itemVersion)
		if task.AssignItem(item.ID) {
			cs.put(domain.CollectionTasks, task.ID, task, taskVersion)
		}
		cs.put(domain.CollectionDeliveryRequests, req.ID, req, reqVersion)
		cs.log(s.audit.Entry(domain.LogDeliveryConfirmed, "Delivery confirmed",
			fmt.Sprintf("Item %s (%s) delivered to infrastructure for task %q", item.Name, item.Serial, task.Name), p))
		return s.commit(ctx, cs)
	})
}

func (s *WorkflowService) RejectDeliveryRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "reject_delivery_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanDecideDelivery(p) {
			return denied("reject delivery")
		}
		unlock, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlock()

		req, version, err := load[domain.DeliveryRequest](ctx, s.Store, domain.CollectionDeliveryRequests, requestID)
		if err != nil {
			return err
		}
		if err := req.Reject(p.ID, s.Now()); err != nil {
			return err
		}

		cs := &changeSet{}
		cs.put(domain.CollectionDeliveryRequests, req.ID, req, version)
		cs.log(s.audit.Entry(domain.LogDeliveryRejected, "Delivery rejected",
			fmt.Sprintf("Delivery of %s (%s) for task %q rejected", req.Name, req.Serial, req.TaskName), p))
		return s.commit(ctx, cs)
	})
}

func (s *WorkflowService) CancelDeliveryRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "cancel_delivery_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlock()

		req, version, err := load[domain.DeliveryRequest](ctx, s.Store, domain.CollectionDeliveryRequests, requestID)
		if err != nil {
			return err
		}
		if !permission.CanCancelRequest(p, req.Request) {
			return denied("cancel another user's delivery request")
		}
		if !req.Pending() {
			return fmt.Errorf("%w: delivery request is %s", domain.ErrInvalidTransition, req.Status)
		}

		cs := &changeSet{}
		cs.remove(domain.CollectionDeliveryRequests, req.ID, version)
		cs.log(s.audit.Entry(domain.LogDeliveryCancelled, "Delivery cancelled",
			fmt.Sprintf("Delivery request for %s (%s) withdrawn", req.Name, req.Serial), p))
		return s.commit(ctx, cs)
	})
}

func (s *WorkflowService) CreateReturnRequest(ctx context.Context, in ReturnInput) (domain.ReturnRequest, error) {
	var created domain.ReturnRequest
	err := s.run(ctx, "create_return_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanRequestReturn(p) {
			return denied("request return")
		}
		if in.ItemID == "" {
			return domain.Validationf("item is required")
		}
		unlock, err := s.lock(ctx, itemKey(in.ItemID))
		if err != nil {
			return err
		}
		defer unlock()

		item, _, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, in.ItemID)
		if err != nil {
			return err
		}
		if item.Warehouse != domain.WarehouseInfrastructure {
			return domain.Validationf("item %s is not in the infrastructure warehouse", item.Serial)
		}
		if err := s.checkNoPending(ctx, item); err != nil {
			return err
		}

		created = domain.ReturnRequest{
			Request: domain.Request{
				ID:            s.NewID(),
				ItemID:        item.ID,
				ItemSnapshot:  item.Snapshot(),
				TaskID:        item.AssignedTask(),
				Status:        domain.RequestStatusPending,
				RequestedBy:   p.ID,
				RequestedDate: s.Now(),
				Notes:         strings.TrimSpace(in.Notes),
			},
			ItemCondition: item.Condition,
		}
		if created.TaskID != "" {
			task, _, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, created.TaskID)
			switch {
			case err == nil:
				created.TaskName = task.Name
			case !isNotFound(err):
				return err
			}
		}

		cs := &changeSet{}
		cs.create(domain.CollectionReturnRequests, created.ID, created)
		cs.log(s.audit.Entry(domain.LogReturnRequest, "Return requested",
			fmt.Sprintf("Item %s (%s) requested back to net, condition %s", item.Name, item.Serial, item.Condition), p))
		return s.commit(ctx, cs)
	})
	return created, err
}

func (s *WorkflowService) ConfirmReturnRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "confirm_return_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanDecideReturn(p) {
			return denied("confirm return")
		}
		unlockReq, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlockReq()

		req, reqVersion, err := load[domain.ReturnRequest](ctx, s.Store, domain.CollectionReturnRequests, requestID)
		if err != nil {
			return err
		}
		if !req.Pending() {
			return fmt.Errorf("%w: return request is %s", domain.ErrInvalidTransition, req.Status)
		}

		unlockItem, err := s.lock(ctx, itemKey(req.ItemID))
		if err != nil {
			return err
		}
		defer unlockItem()

		item, itemVersion, err := load[domain.InventoryItem](ctx, s.Store, domain.CollectionItems, req.ItemID)
		if err != nil {
			return err
		}
		if item.Warehouse != domain.WarehouseInfrastructure {
			return domain.Validationf("item %s is no longer in the infrastructure warehouse", item.Serial)
		}

		cs := &changeSet{}
		if taskID := item.AssignedTask(); taskID != "" {
			unlockTask, err := s.lock(ctx, taskKey(taskID))
			if err != nil {
				return err
			}
			defer unlockTask()

			task, taskVersion, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, taskID)
			switch {
			case err == nil:
				if task.ReleaseItem(item.ID) {
					cs.put(domain.CollectionTasks, task.ID, task, taskVersion)
				}
			case isNotFound(err):
				s.Logger.Warn("returned item references a missing task",
					zap.String("item", item.ID), zap.String("task", taskID))
			default:
				return err
			}
		}

		now := s.Now()
		item.Warehouse = domain.WarehouseNet
		item.Detach()
		if err := req.Confirm(p.ID, now); err != nil {
			return err
		}

		cs.put(domain.CollectionItems, item.ID, item, itemVersion)
		cs.put(domain.CollectionReturnRequests, req.ID, req, reqVersion)
		cs.log(s.audit.Entry(domain.LogReturnConfirmed, "Return confirmed",
			fmt.Sprintf("Item %s (%s) returned to net in %s condition", item.Name, item.Serial, item.Condition), p))
		return s.commit(ctx, cs)
	})
}

func (s *WorkflowService) RejectReturnRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "reject_return_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanDecideReturn(p) {
			return denied("reject return")
		}
		unlock, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlock()

		req, version, err := load[domain.ReturnRequest](ctx, s.Store, domain.CollectionReturnRequests, requestID)
		if err != nil {
			return err
		}
		if err := req.Reject(p.ID, s.Now()); err != nil {
			return err
		}

		cs := &changeSet{}
		cs.put(domain.CollectionReturnRequests, req.ID, req, version)
		cs.log(s.audit.Entry(domain.LogReturnRejected, "Return rejected",
			fmt.Sprintf("Return of %s (%s) rejected", req.Name, req.Serial), p))
		return s.commit(ctx, cs)
	})
}

func (s *WorkflowService) CancelReturnRequest(ctx context.Context, requestID string) error {
	return s.run(ctx, "cancel_return_request", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, requestKey(requestID))
		if err != nil {
			return err
		}
		defer unlock()

		req, version, err := load[domain.ReturnRequest](ctx, s.Store, domain.CollectionReturnRequests, requestID)
		if err != nil {
			return err
		}
		if !permission.CanCancelRequest(p, req.Request) {
			return denied("cancel another user's return request")
		}
		if !req.Pending() {
			return fmt.Errorf("%w: return request is %s", domain.ErrInvalidTransition, req.Status)
		}

		cs := &changeSet{}
		cs.remove(domain.CollectionReturnRequests, req.ID, version)
		cs.log(s.audit.Entry(domain.LogReturnCancelled, "Return cancelled",
			fmt.Sprintf("Return request for %s (%s) withdrawn", req.Name, req.Serial), p))
		return s.commit(ctx, cs)
	})
}

// DeliveryRequests lists every delivery request, newest first.
func (s *WorkflowService) DeliveryRequests(ctx context.Context) ([]domain.DeliveryRequest, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	return s.Mirror.DeliveryRequests(), nil
}

// ReturnRequests lists every return request, newest first.
func (s *WorkflowService) ReturnRequests(ctx context.Context) ([]domain.ReturnRequest, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	return s.Mirror.ReturnRequests(), nil
}

// PendingRequests returns the pending requests the caller either sent or
// has to decide. Admins see all of them.
func (s *WorkflowService) PendingRequests(ctx context.Context) (PendingRequests, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return PendingRequests{}, err
	}
	out := PendingRequests{
		Deliveries: []domain.DeliveryRequest{},
		Returns:    []domain.ReturnRequest{},
	}
	for _, d := range s.Mirror.DeliveryRequests() {
		if d.Pending() && (permission.CanDecideDelivery(p) || d.RequestedBy == p.ID) {
			out.Deliveries = append(out.Deliveries, d)
		}
	}
	for _, r := range s.Mirror.ReturnRequests() {
		if r.Pending() && (permission.CanDecideReturn(p) || r.RequestedBy == p.ID) {
			out.Returns = append(out.Returns, r)
		}
	}
	return out, nil
}

func (s *WorkflowService) checkNoPending(ctx context.Context, item domain.InventoryItem) error {
	if s.opts.AllowDuplicatePending {
		return nil
	}
	kind, err := s.pendingRequestFor(ctx, item.ID)
	if err != nil {
		return err
	}
	if kind != "" {
		return domain.Validationf("item %s already has a pending %s request", item.Serial, kind)
	}
	return nil
}
