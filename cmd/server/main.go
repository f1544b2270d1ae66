package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/warehouse-flow/config"
	"github.com/rl1809/warehouse-flow/internal/adapter/handler"
	"github.com/rl1809/warehouse-flow/internal/adapter/identity"
	"github.com/rl1809/warehouse-flow/internal/adapter/metrics"
	"github.com/rl1809/warehouse-flow/internal/adapter/notify"
	"github.com/rl1809/warehouse-flow/internal/adapter/storage"
	"github.com/rl1809/warehouse-flow/internal/core/service"
	"github.com/rl1809/warehouse-flow/internal/core/state"
	"github.com/rl1809/warehouse-flow/internal/logger"
	"github.com/rl1809/warehouse-flow/internal/port"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadEnv()

	appLogger, err := logger.New(logger.Config{
		IsDevelopment:     cfg.Server.AppEnv == "dev" || cfg.Server.AppEnv == "development",
		Level:             cfg.Logger.Level,
		Encoding:          cfg.Logger.Encoding,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: it provides the change feed and the shared guard.
	var (
		rdb          *redis.Client
		redisAdapter *storage.RedisAdapter
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		redisAdapter = storage.NewRedisAdapter(rdb, cfg.Workflow.LockTTL)
		appLogger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	store, runStore, closeStore := openStore(ctx, cfg, redisAdapter, appLogger)
	defer closeStore()
	go func() {
		if err := runStore(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("change feed stopped", zap.Error(err))
		}
	}()

	var guard port.CommandGuard = storage.NewMemoryGuard()
	if redisAdapter != nil {
		guard = redisAdapter
	}

	directory, err := identity.Load(cfg.Identity.DirectoryFile)
	if err != nil {
		appLogger.Fatal("failed to load identity directory", zap.String("file", cfg.Identity.DirectoryFile), zap.Error(err))
	}

	hub := notify.NewHub(appLogger.Named("notify"), 32)
	recorder := metrics.NewRecorder("warehouse")

	mirror := state.NewMirror(store, hub, appLogger.Named("mirror"))
	if err := mirror.Start(ctx); err != nil {
		appLogger.Fatal("failed to start state mirror", zap.Error(err))
	}
	defer mirror.Stop()

	deps := service.Deps{
		Store:    store,
		Identity: directory,
		Guard:    guard,
		Notifier: hub,
		Metrics:  recorder,
		Mirror:   mirror,
		Logger:   appLogger.Named("service"),
	}
	svc := handler.Services{
		Inventory: service.NewInventoryService(deps),
		Tasks:     service.NewTaskService(deps),
		Transfers: service.NewTransferService(deps),
		Workflow: service.NewWorkflowService(deps, service.WorkflowOptions{
			AllowDuplicatePending: cfg.Workflow.AllowDuplicatePending,
		}),
		Logs: service.NewLogService(deps),
	}

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.CallerInterceptor()))
	handler.RegisterRequestServer(grpcServer, handler.NewGRPCHandler(svc.Workflow, appLogger.Named("grpc")))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCPort)
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCPort), zap.Error(err))
	}
	go func() {
		appLogger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(svc, hub, recorder.Handler(), appLogger.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPPort,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLogger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			appLogger.Error("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	appLogger.Info("gRPC server stopped")

	cancel()
	appLogger.Info("connections closed")
}

// openStore picks the document store named by STORE_DRIVER. The returned
// run function drives the change feed for SQL stores.
func openStore(ctx context.Context, cfg *config.Config, feed *storage.RedisAdapter, appLogger *zap.Logger) (port.DocumentStore, func(context.Context) error, func()) {
	if cfg.Store.Driver == "memory" {
		appLogger.Warn("using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), func(context.Context) error { return nil }, func() {}
	}

	dialect, err := storage.DialectFor(cfg.Store.Driver)
	if err != nil {
		appLogger.Fatal("invalid store driver", zap.Error(err))
	}
	db, err := storage.OpenSQL(ctx, dialect, cfg.Store.DSN)
	if err != nil {
		appLogger.Fatal("failed to connect store", zap.String("driver", dialect.Name), zap.Error(err))
	}
	if dialect.Name != storage.SQLite.Name {
		db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Store.MaxIdleConns)
	}

	var changeFeed storage.ChangeFeed
	if feed != nil {
		changeFeed = feed
	}
	adapter := storage.NewSQLAdapter(db, dialect, changeFeed, appLogger.Named("store"))
	if err := adapter.Migrate(ctx); err != nil {
		appLogger.Fatal("failed to migrate store", zap.Error(err))
	}
	appLogger.Info("connected to store", zap.String("driver", dialect.Name))
	return adapter, adapter.Run, func() { db.Close() }
}
