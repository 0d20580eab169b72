package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/rehydrator/internal/app"
	"github.com/dharsanguruparan/rehydrator/internal/config"
	"github.com/dharsanguruparan/rehydrator/internal/logger"
	"github.com/dharsanguruparan/rehydrator/internal/queue"
	"github.com/dharsanguruparan/rehydrator/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("REHYDRATE_CONFIG"))
	if err != nil {
		logger.New("info", "json").Fatalf("load config: %v", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	pipeline, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalf("build pipeline: %v", err)
	}
	defer pipeline.Close()

	redis := asynq.RedisClientOpt{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	}
	// One drain at a time: files are processed strictly in sequence.
	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{queue.Queue: 1},
		Logger:      log,
	})
	processor := worker.NewProcessor(pipeline.Orchestrator, cfg.Rehydration.InBox, cfg.Rehydration.InBoxCompleted, log)

	var scheduler *asynq.Scheduler
	if cfg.Queue.Schedule != "" {
		task, err := queue.NewDrainTask(queue.DrainPayload{})
		if err != nil {
			log.Fatalf("build drain task: %v", err)
		}
		scheduler = asynq.NewScheduler(redis, &asynq.SchedulerOpts{Logger: log})
		if _, err := scheduler.Register(cfg.Queue.Schedule, task); err != nil {
			log.Fatalf("register schedule %q: %v", cfg.Queue.Schedule, err)
		}
		if err := scheduler.Start(); err != nil {
			log.Fatalf("start scheduler: %v", err)
		}
		log.WithField("schedule", cfg.Queue.Schedule).Info("periodic drain scheduled")
	}

	go func() {
		<-ctx.Done()
		if scheduler != nil {
			scheduler.Shutdown()
		}
		server.Shutdown()
	}()

	if err := server.Run(processor.Handler()); err != nil {
		log.Errorf("worker stopped: %v", err)
		os.Exit(1)
	}
}
