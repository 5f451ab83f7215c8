package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/config"
	"kitchenops/internal/events"
	"kitchenops/internal/infrastructure/kafka"
	"kitchenops/internal/infrastructure/logger"
	"kitchenops/internal/infrastructure/mysql"
	"kitchenops/internal/infrastructure/rabbitmq"
	redisinfra "kitchenops/internal/infrastructure/redis"
	"kitchenops/internal/infrastructure/transport"
	"kitchenops/internal/infrastructure/websocket"
	"kitchenops/internal/kitchen"
	kitchenrepo "kitchenops/internal/kitchen/repository"
	"kitchenops/internal/notification"
	notifservice "kitchenops/internal/notification/service"
	"kitchenops/internal/order"
	"kitchenops/internal/printing"
	"kitchenops/internal/printing/routing"
	"kitchenops/internal/printing/worker"
	"kitchenops/internal/scheduler"
	"kitchenops/internal/server"
)

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return commons.LoadConfig(path)
	}
	return config.Load()
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := mysql.NewConnection(cfg.Database)
	if err != nil {
		zapLogger.Fatal("connecting to database", zap.Error(err))
	}
	defer db.Close()
	zapLogger.Info("database connected")

	// Without Redis, round-robin rotation and printer leases are per process,
	// which is only correct for a single instance.
	var rotator routing.Rotator = routing.NewMemoryRotator()
	var leases worker.Locker = worker.NewMemoryLocker()
	if cfg.Redis.Addr != "" {
		client, err := redisinfra.NewClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("connecting to redis", zap.Error(err))
		}
		defer client.Close()
		rotator = routing.NewRedisRotator(client)
		leases = redisinfra.NewLocker(client)
		zapLogger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	hub := websocket.NewHub(zapLogger)
	publisher := events.Multi{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(kafka.NewWriter(cfg.Kafka, zapLogger), zapLogger)
		defer kafkaPublisher.Close()
		publisher = append(publisher, kafkaPublisher)
		zapLogger.Info("kafka event stream enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	var pagerTransport notifservice.Transport = transport.NewLogNotificationTransport(zapLogger)
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ, zapLogger)
		if err != nil {
			zapLogger.Fatal("connecting to rabbitmq", zap.Error(err))
		}
		defer conn.Close()
		pagerTransport = rabbitmq.NewPagerTransport(conn.Channel, cfg.RabbitMQ.Exchange, zapLogger)
	}

	orderLocks := commons.NewKeyedMutex()
	stations := kitchenrepo.NewMySQLStationRepository(db)

	printingMod := printing.NewModule(db, cfg, stations, rotator, leases, transport.NewPrinterTransport(zapLogger), publisher, zapLogger)
	notificationMod := notification.NewModule(db, cfg, pagerTransport, publisher, zapLogger)
	orderMod := order.NewModule(db, cfg, notificationMod.Service, printingMod.Engine, orderLocks, publisher, zapLogger)
	kitchenMod := kitchen.NewModule(cfg, orderMod.Repository, stations, orderLocks, orderMod.Service, publisher, zapLogger)

	router := server.NewRouter(zapLogger, hub,
		orderMod.Controller,
		kitchenMod.Controller,
		printingMod.Controller(orderMod.Service),
		notificationMod.Controller,
	)

	srv := server.New(cfg.Server, router, zapLogger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	poolDone := make(chan struct{})
	go func() {
		printingMod.Pool.Run(ctx)
		close(poolDone)
	}()

	sched := scheduler.New(zapLogger)
	scheduler.RegisterSweeps(sched, cfg.Scheduler, printingMod.Printers, printingMod.Queue, notificationMod.Service)
	sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	zapLogger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server shutdown failed", zap.Error(err))
	}

	stop()
	sched.Wait()
	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		zapLogger.Warn("print workers did not stop in time")
	}

	zapLogger.Info("server stopped gracefully")
}
