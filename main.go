package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/p-dutta/transcoder/config"
	"github.com/p-dutta/transcoder/handlers"
	"github.com/p-dutta/transcoder/internal/blobstore"
	"github.com/p-dutta/transcoder/internal/bus"
	"github.com/p-dutta/transcoder/internal/consumers"
	"github.com/p-dutta/transcoder/internal/keyserver"
	"github.com/p-dutta/transcoder/internal/orchestrator"
	"github.com/p-dutta/transcoder/internal/packaging"
	"github.com/p-dutta/transcoder/internal/store"
	"github.com/p-dutta/transcoder/internal/transcoder"
	"github.com/p-dutta/transcoder/internal/worker"
	"github.com/p-dutta/transcoder/middleware"
	"github.com/p-dutta/transcoder/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := config.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration load failed")
	}

	supaClient, err := config.NewSupabase(cfg.Supabase)
	if err != nil {
		log.WithError(err).Fatal("supabase client init failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := blobstore.NewStore(ctx, cfg.Blob.Region, log)
	if err != nil {
		log.WithError(err).Fatal("blob store init failed")
	}

	queue, err := bus.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.ConsumerGroup, hostnameConsumer(), log)
	if err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}
	defer queue.Close()

	builder := packaging.NewBuilder(cfg.Engine.ProjectID, cfg.KeyServer.SecretID)
	jobStore := store.NewJobStore(supaClient, log)
	keys := keyserver.NewClient(cfg.KeyServer.URL, builder, log)
	engine := transcoder.NewClient(cfg.Engine.BaseURL, cfg.Engine.ProjectID, cfg.Engine.Location, cfg.Engine.CompletionTopic, log)

	orch := orchestrator.New(jobStore, engine, keys, blobs, builder, orchestrator.Config{
		ProjectID:     cfg.Engine.ProjectID,
		Location:      cfg.Engine.Location,
		SecretVersion: cfg.KeyServer.SecretVersion,
	}, log)

	validate := validator.New()

	var wg sync.WaitGroup
	startLoop := func(handler consumers.Handler, stream string) {
		sub, err := queue.Subscribe(ctx, stream)
		if err != nil {
			log.WithError(err).WithField("stream", stream).Fatal("stream subscription failed")
		}
		dispatcher := worker.NewDispatcher(cfg.Workers.MaxWorkers, cfg.Workers.QueueSize, log)
		loop := consumers.NewLoop(handler, sub, dispatcher, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithField("stream", stream).Info("consumer loop started")
			loop.Run(ctx)
		}()
	}

	startLoop(consumers.NewJobRequestHandler(orch, validate, log), cfg.Redis.JobRequestStream)
	startLoop(consumers.NewStorageTriggerHandler(orch, cfg.Blob.OutputBucket, cfg.Blob.ImageURI, log), cfg.Redis.StorageTriggerStream)
	startLoop(consumers.NewJobCompletionHandler(orch, queue, cfg.Redis.NotificationStream, cfg.Packaging.MediaCDNBase, log), cfg.Redis.JobCompletionStream)

	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(middleware.RequestLogger(log))

	h := handlers.NewApplicationHandler(orch, engine, validate, log, cfg.Packaging.MediaCDNBase)
	app.Get("/health", h.Health)

	api := app.Group("/api/" + cfg.Server.APIVersion)
	api.Get("/health", h.Health)
	api.Post("/job/create", h.CreateJob)
	api.Get("/job/list", h.ListJobs)
	api.Post("/job/list/details", h.JobDetails)
	api.Get("/template/list", h.ListTemplates)
	api.Post("/template/delete", h.DeleteTemplate)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.WithError(err).Fatal("http server stopped")
		}
	}()
	log.WithField("port", cfg.Server.Port).Info("transcoder service started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn("consumer loops did not drain in time")
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}
	log.Info("transcoder service stopped")
}

// hostnameConsumer derives a per-replica consumer name so scaled instances
// split stream entries instead of duplicating them.
func hostnameConsumer() string {
	host, err := os.Hostname()
	if err != nil {
		return "transcoder-1"
	}
	return "transcoder-" + host
}
