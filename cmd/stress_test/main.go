package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/warehouse-flow/internal/adapter/identity"
	"github.com/rl1809/warehouse-flow/internal/adapter/storage"
	"github.com/rl1809/warehouse-flow/internal/core/domain"
	"github.com/rl1809/warehouse-flow/internal/core/service"
	"github.com/rl1809/warehouse-flow/internal/core/state"
	"github.com/rl1809/warehouse-flow/internal/port"
)

const deciders = 50

func main() {
	redisAddr := flag.String("redis", "", "redis address for the shared guard, in-process guard when empty")
	flag.Parse()

	ctx := context.Background()

	var guard port.CommandGuard = storage.NewMemoryGuard()
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		guard = storage.NewRedisAdapter(rdb, 5*time.Second)
	}

	users := []identity.User{
		{ID: "requester", DisplayName: "Requester", Warehouse: domain.WarehouseNet},
		{ID: "planner", DisplayName: "Planner", Admin: true},
	}
	for i := 0; i < deciders; i++ {
		users = append(users, identity.User{ID: fmt.Sprintf("infra-%d", i), Warehouse: domain.WarehouseInfrastructure})
	}
	directory, err := identity.NewDirectory(users)
	if err != nil {
		log.Fatalf("failed to build directory: %v", err)
	}

	store := storage.NewMemoryStore()
	mirror := state.NewMirror(store, nil, zap.NewNop())
	if err := mirror.Start(ctx); err != nil {
		log.Fatalf("failed to start mirror: %v", err)
	}
	defer mirror.Stop()

	deps := service.Deps{Store: store, Identity: directory, Guard: guard, Mirror: mirror}
	inventory := service.NewInventoryService(deps)
	tasks := service.NewTaskService(deps)
	workflow := service.NewWorkflowService(deps, service.WorkflowOptions{})

	as := func(id string) context.Context { return domain.ContextWithUserID(ctx, id) }

	item, err := inventory.CreateItem(as("planner"), service.ItemInput{
		Serial:    fmt.Sprintf("STRESS-%d", time.Now().UnixNano()),
		Name:      "Stress switch",
		Warehouse: domain.WarehouseNet,
	})
	if err != nil {
		log.Fatalf("failed to seed item: %v", err)
	}
	task, err := tasks.CreateTask(as("planner"), service.TaskInput{Name: "Stress rollout"})
	if err != nil {
		log.Fatalf("failed to seed task: %v", err)
	}
	req, err := workflow.CreateDeliveryRequest(as("requester"), service.DeliveryInput{ItemID: item.ID, TaskID: task.ID})
	if err != nil {
		log.Fatalf("failed to create delivery request: %v", err)
	}

	var confirmed, busy, stale, other atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < deciders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := workflow.ConfirmDeliveryRequest(as(fmt.Sprintf("infra-%d", n)), req.ID)
			switch {
			case err == nil:
				confirmed.Add(1)
			case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrOptimisticLock):
				busy.Add(1)
			case errors.Is(err, domain.ErrInvalidTransition):
				stale.Add(1)
			default:
				other.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	fmt.Println("========== CONTENTION TEST RESULTS ==========")
	fmt.Printf("Concurrent confirms: %d\n", deciders)
	fmt.Printf("Confirmed:           %d\n", confirmed.Load())
	fmt.Printf("Rejected busy:       %d\n", busy.Load())
	fmt.Printf("Already decided:     %d\n", stale.Load())
	fmt.Printf("Other errors:        %d\n", other.Load())
	fmt.Printf("Duration:            %v\n", elapsed)
	fmt.Println("==============================================")

	if confirmed.Load() == 1 && other.Load() == 0 {
		fmt.Println("PASS: exactly one confirmation went through")
	} else {
		fmt.Printf("FAIL: expected 1 confirmation, got %d (%d unexpected errors)\n", confirmed.Load(), other.Load())
	}

	got, _ := mirror.Task(task.ID)
	if len(got.AssignedItems) == 1 && got.AssignedItems[0] == item.ID {
		fmt.Println("PASS: task lists the item once")
	} else {
		fmt.Printf("FAIL: task assigned items %v\n", got.AssignedItems)
	}
}
