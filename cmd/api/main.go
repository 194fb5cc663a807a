package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"clockwork/internal/api"
	"clockwork/internal/attendance"
	"clockwork/internal/cloudinary"
	"clockwork/internal/config"
	"clockwork/internal/faceclient"
	"clockwork/internal/httpmiddleware"
	"clockwork/internal/photocheck"
	"clockwork/internal/queue"
	"clockwork/internal/store"
	"clockwork/internal/users"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()
	health := map[string]func(context.Context) bool{}

	var (
		sessions attendance.Store
		checks   attendance.PhotoCheckStore
		accounts users.Store
	)
	switch cfg.StoreBackend {
	case "memory":
		log.Println("using in-memory stores; data is lost on restart")
		sessions = attendance.NewMemoryStore()
		checks = attendance.NewMemoryPhotoChecks()
		accounts = users.NewMemoryRepository()
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := attendance.NewPostgresStore(db.Client)
		sessions, checks = pg, pg
		accounts = users.NewRepository(db.Client)
		health["db"] = db.Healthy
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		health["redis"] = redisClient.Healthy
	}

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	case "memory":
		q = queue.NewInMemory(64)
	default:
		log.Printf("clock event publishing disabled (QUEUE_BACKEND=%q)", cfg.QueueBackend)
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	userSvc := users.NewService(accounts, cfg.BcryptCost, cfg.GeofenceRadiusMeters)
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if _, err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
		log.Println("admin account ready:", cfg.AdminEmail)
	}
	attSvc := attendance.NewService(sessions, userSvc)

	// With the in-memory queue the photo worker runs inside this process.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if mem, ok := q.(*queue.InMemory); ok {
		messages, err := mem.Consume(workerCtx)
		if err != nil {
			return err
		}
		proc := photocheck.NewProcessor(attSvc, checks, archiverFor(cfg), faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip))
		go proc.Run(workerCtx, messages)
	}

	srvHandler := api.NewServer(attSvc, userSvc, checks, q, api.Options{
		SigningKey:    cfg.JWTSigningKey,
		Issuer:        cfg.JWTIssuer,
		TokenTTL:      cfg.TokenTTL,
		AllowedOrigin: cfg.AllowedOrigin,
		Limiter:       limiter,
		Health:        health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srvHandler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func archiverFor(cfg config.App) photocheck.Archiver {
	if !cfg.CloudinaryConfigured() {
		return nil
	}
	return cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
}
