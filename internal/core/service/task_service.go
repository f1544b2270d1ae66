package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/permission"
)

// TaskService manages the lifecycle of tasks that items are assigned to.
type TaskService struct {
	base
}

func NewTaskService(d Deps) *TaskService {
	return &TaskService{base: newBase(d)}
}

type TaskInput struct {
	Name        string
	Type        string
	Description string
	Location    string
	Priority    domain.Priority
	Deadline    *time.Time
}

func (s *TaskService) CreateTask(ctx context.Context, in TaskInput) (domain.Task, error) {
	var created domain.Task
	err := s.run(ctx, "create_task", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		if !permission.CanCreateTask(p) {
			return denied("create task")
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return domain.Validationf("task name is required")
		}
		priority := in.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}
		if !priority.Valid() {
			return domain.Validationf("unknown priority %q", priority)
		}
		now := s.Now()
		if in.Deadline != nil && in.Deadline.Before(now) {
			return domain.Validationf("stale deadline %s", in.Deadline.Format(time.RFC3339))
		}

		created = domain.Task{
			ID:                 s.NewID(),
			Name:               name,
			Type:               in.Type,
			Description:        in.Description,
			Location:           in.Location,
			Priority:           priority,
			Status:             domain.TaskStatusPending,
			Deadline:           in.Deadline,
			CreatedDate:        now,
			CreatedBy:          p.ID,
			CreatedByWarehouse: p.Warehouse,
			AssignedItems:      []string{},
		}
		cs := &changeSet{}
		cs.create(domain.CollectionTasks, created.ID, created)
		cs.log(s.audit.Entry(domain.LogTaskCreated, "Task created",
			fmt.Sprintf("Task %q created with %s priority", created.Name, created.Priority), p))
		return s.commit(ctx, cs)
	})
	return created, err
}

func (s *TaskService) StartTask(ctx context.Context, id string) error {
	return s.progress(ctx, "start_task", id, domain.TaskStatusInProgress, domain.LogTaskStarted, "Task started")
}

func (s *TaskService) SubmitTask(ctx context.Context, id string) error {
	return s.progress(ctx, "submit_task", id, domain.TaskStatusWaitingConfirmation, domain.LogTaskSubmitted, "Task submitted")
}

func (s *TaskService) progress(ctx context.Context, op, id string, to domain.TaskStatus, logType domain.LogType, action string) error {
	return s.run(ctx, op, func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, taskKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		task, version, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, id)
		if err != nil {
			return err
		}
		if !permission.CanProgressTask(p, task) {
			return denied("update task")
		}
		if err := task.Advance(to); err != nil {
			return err
		}
		cs := &changeSet{}
		cs.put(domain.CollectionTasks, task.ID, task, version)
		cs.log(s.audit.Entry(logType, action, fmt.Sprintf("Task %q is now %s", task.Name, task.Status), p))
		return s.commit(ctx, cs)
	})
}

// CloseTask completes a task. Only its creator may do so and assigned
// items stay where they are.
func (s *TaskService) CloseTask(ctx context.Context, id string) error {
	return s.run(ctx, "close_task", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, taskKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		task, version, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, id)
		if err != nil {
			return err
		}
		if !permission.CanCloseTask(p, task) {
			return denied("close a task created by someone else")
		}
		if err := task.Complete(p.ID, s.Now()); err != nil {
			return err
		}
		cs := &changeSet{}
		cs.put(domain.CollectionTasks, task.ID, task, version)
		cs.log(s.audit.Entry(domain.LogTaskCompleted, "Task completed",
			fmt.Sprintf("Task %q completed with %d item(s) still assigned", task.Name, len(task.AssignedItems)), p))
		return s.commit(ctx, cs)
	})
}

func (s *TaskService) CancelTask(ctx context.Context, id string) error {
	return s.run(ctx, "cancel_task", func() error {
		p, err := s.principal(ctx)
		if err != nil {
			return err
		}
		unlock, err := s.lock(ctx, taskKey(id))
		if err != nil {
			return err
		}
		defer unlock()

		task, version, err := load[domain.Task](ctx, s.Store, domain.CollectionTasks, id)
		if err != nil {
			return err
		}
		if !permission.CanCancelTask(p, task) {
			return denied("cancel a task created by someone else")
		}
		if len(task.AssignedItems) > 0 {
			return domain.Validationf("task %q still has %d assigned item(s)", task.Name, len(task.AssignedItems))
		}
		if err := task.Cancel(); err != nil {
			return err
		}
		cs := &changeSet{}
		cs.put(domain.CollectionTasks, task.ID, task, version)
		cs.log(s.audit.Entry(domain.LogTaskCancelled, "Task cancelled", fmt.Sprintf("Task %q cancelled", task.Name), p))
		return s.commit(ctx, cs)
	})
}

func (s *TaskService) Tasks(ctx context.Context) ([]domain.Task, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	return s.Mirror.Tasks(), nil
}

func (s *TaskService) Task(ctx context.Context, id string) (domain.Task, error) {
	if _, err := s.principal(ctx); err != nil {
		return domain.Task{}, err
	}
	task, ok := s.Mirror.Task(id)
	if !ok {
		return domain.Task{}, domain.NotFoundError{Collection: domain.CollectionTasks, ID: id}
	}
	return task, nil
}
