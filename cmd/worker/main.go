package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"clockwork/internal/attendance"
	"clockwork/internal/cloudinary"
	"clockwork/internal/config"
	"clockwork/internal/faceclient"
	"clockwork/internal/photocheck"
	"clockwork/internal/queue"
	"clockwork/internal/store"
	"clockwork/internal/users"
)

// Worker consumes clock events and checks clock-in photos.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatalf("worker needs QUEUE_BACKEND=redis, got %q", cfg.QueueBackend)
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	q := queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)

	pg := attendance.NewPostgresStore(db.Client)
	userSvc := users.NewService(users.NewRepository(db.Client), cfg.BcryptCost, cfg.GeofenceRadiusMeters)
	attSvc := attendance.NewService(pg, userSvc)

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: Face service not available: %v", err)
		} else {
			log.Println("Face service connected")
		}
	}

	var archiver photocheck.Archiver
	if cfg.CloudinaryConfigured() {
		archiver = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured; photos are checked without archiving")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	photocheck.NewProcessor(attSvc, pg, archiver, face).Run(ctx, messages)
	log.Println("worker stopped")
}
