package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/config"
	"github.com/issuetrack/backend/internal/handler"
	"github.com/issuetrack/backend/internal/notify"
	"github.com/issuetrack/backend/internal/router"
	"github.com/issuetrack/backend/internal/scheduler"
	"github.com/issuetrack/backend/internal/service"
	"github.com/issuetrack/backend/internal/sse"
	"github.com/issuetrack/backend/internal/storage"
	"github.com/issuetrack/backend/internal/store"
)

func openDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		dialector = mysql.Open(cfg.DSN())
	}
	return gorm.Open(dialector, &gorm.Config{TranslateError: true})
}

func main() {
	// Load config
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	st := store.New(db)

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Notifier
	var notifier notify.Notifier
	if cfg.Mail.Enabled {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
		})
	} else {
		notifier = notify.NoopNotifier{}
	}

	// Services
	authService := service.NewAuthService(db, st, notifier, service.AuthConfig{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		FrontendBase:  cfg.Server.FrontendBase,
	})
	projectService := service.NewProjectService(db, st)
	issueService := service.NewIssueService(db, st)

	// Live project activity, replayable from Redis
	hub := sse.NewHub(rdb)
	projectService.SetActivity(hub)
	issueService.SetActivity(hub)

	var uploadHandler *handler.UploadHandler
	if cfg.Storage.Endpoint != "" {
		objects, err := storage.NewMinioStore(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			log.Fatalf("object storage: %v", err)
		}
		uploadHandler = handler.NewUploadHandler(service.NewUploadService(objects, service.UploadConfig{
			MaxSize:    cfg.Storage.MaxSizeMB << 20,
			Extensions: cfg.Storage.Extensions,
			PresignTTL: cfg.Storage.PresignTTL,
		}))
	} else {
		log.Println("[main] storage.endpoint not set, uploads disabled")
	}

	// Deadline scan. Without mail the scan would flag issues nobody was
	// told about, so it only runs when mail is enabled.
	var scans handler.ScanController
	if cfg.Scanner.Enabled && cfg.Mail.Enabled {
		loc, _ := cfg.Scanner.Location()
		scanner := scheduler.NewScanner(st, st, st, notifier, scheduler.ScannerConfig{
			SendTimeout: cfg.Scanner.SendTimeout,
			Workers:     cfg.Scanner.Workers,
			MailDomain:  cfg.Mail.Domain,
		})
		sched, err := scheduler.New(scanner, scheduler.Options{
			Spec:     cfg.Scanner.Cron,
			Location: loc,
			Locker:   scheduler.NewRedisLocker(rdb),
			LockTTL:  cfg.Scanner.LockTTL,
		})
		if err != nil {
			log.Fatalf("scheduler: %v", err)
		}
		sched.Start()
		defer sched.Stop()
		scans = sched
	} else {
		log.Println("[main] deadline scan disabled (needs scanner.enabled and mail.enabled)")
	}

	// Gin engine
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	router.Setup(r, router.Deps{
		Auth:           authService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Storage.MaxSizeMB << 20,
		AuthHandler:    handler.NewAuthHandler(authService),
		ProjectHandler: handler.NewProjectHandler(projectService, issueService),
		IssueHandler:   handler.NewIssueHandler(issueService),
		UploadHandler:  uploadHandler,
		HealthHandler:  handler.NewHealthHandler(db, rdb, scans),

		ActivityHandler: handler.NewActivityHandler(projectService, hub),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}
	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server run: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
