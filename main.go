package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"socialfeed/auth"
	"socialfeed/config"
	"socialfeed/database"
	"socialfeed/handlers"
	"socialfeed/interaction"
	"socialfeed/mailer"
	"socialfeed/media"
	"socialfeed/middleware"
	"socialfeed/push"
	"socialfeed/queue"
	"socialfeed/routes"
	"socialfeed/store"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("Starting socialfeed server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
		log.Println("Running in RELEASE mode")
	} else {
		gin.SetMode(gin.DebugMode)
		log.Println("Running in DEBUG mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== MONGODB =====
	log.Println("Connecting to MongoDB...")
	db, err := database.ConnectWithRetry(ctx, cfg.Mongo.URI, cfg.Mongo.Database, 3, 2*time.Second)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to create indexes: ", err)
	}
	st := store.NewMongo(db)

	// ===== REDIS (optional) =====
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, using in-process rate limiting: %v", err)
	}

	// ===== SERVICES =====
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	creds := auth.NewCredentials(st, auth.CredentialsOptions{
		BcryptCost:    cfg.Auth.BcryptCost,
		ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		StoreTimeout:  cfg.Mongo.Timeout,
	})

	var sender mailer.Sender = mailer.Disabled{}
	if cfg.Mail.Enabled() {
		sender = mailer.NewSMTP(cfg.Mail)
	} else {
		log.Println("SMTP not configured; password reset mails will fail")
	}
	reset := auth.NewPasswordReset(creds, tokens, sender, cfg.Mail.Timeout)

	pushSvc := push.NewService(st, cfg.VAPID)
	engineOpts := interaction.Options{StoreTimeout: cfg.Mongo.Timeout}
	if cfg.VAPID.Enabled() {
		engineOpts.Notifier = pushSvc
	} else {
		log.Println("VAPID keys not set; push notifications disabled (run tools/vapidkeys)")
	}
	if cfg.RabbitMQURL != "" {
		engineOpts.Reconciler = queue.NewPublisher(cfg.RabbitMQURL)
	}
	engine := interaction.NewEngine(st, st, creds, engineOpts)

	var uploads media.Uploader = media.Disabled{}
	if cld, err := media.NewCloudinary(cfg.CloudinaryURL); err == nil {
		uploads = cld
	} else if !errors.Is(err, media.ErrNotConfigured) {
		log.Printf("Cloudinary disabled: %v", err)
	}

	// ===== BACKGROUND WORKERS =====
	var workers sync.WaitGroup
	workerCtx, stopWorkers := context.WithCancel(ctx)

	workers.Add(1)
	go func() {
		defer workers.Done()
		engine.RunReconciler(workerCtx, cfg.ReconcileInterval, cfg.ReconcileGrace)
	}()

	if cfg.RabbitMQURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitMQURL, func(ctx context.Context, job queue.CommentLinkJob) error {
			postID, commentID, err := job.IDs()
			if err != nil {
				return err
			}
			return engine.LinkComment(ctx, postID, commentID)
		}, cfg.Mongo.Timeout)

		workers.Add(1)
		go func() {
			defer workers.Done()
			consumer.Run(workerCtx)
		}()
		log.Println("Comment-link consumer started")
	}

	// ===== ROUTER =====
	h := handlers.New(handlers.Deps{
		Credentials:   creds,
		Tokens:        tokens,
		PasswordReset: reset,
		Engine:        engine,
		Push:          pushSvc,
		Uploads:       uploads,
		BaseURL:       cfg.BaseURL,
		CookieSecure:  cfg.CookieSecure,
	})

	opts := routes.Options{
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Gateway:        middleware.Authenticate(tokens, creds, cfg.Mongo.Timeout),
		RateLimit:      cfg.Rate.Limit,
	}
	if cfg.Rate.Enabled {
		if rdb != nil {
			opts.Limiter = middleware.NewRedisLimiter(rdb, cfg.Rate.Prefix, cfg.Rate.Limit, cfg.Rate.Window)
		} else {
			opts.Limiter = middleware.NewIPRateLimiter(cfg.Rate.Limit, cfg.Rate.Window)
		}
	}
	router := routes.SetupRouter(h, opts)

	// ===== SERVER =====
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server running on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error: ", err)
		}
	}()

	// ===== GRACEFUL SHUTDOWN =====
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Println("Forced shutdown:", err)
	}

	stopWorkers()
	workers.Wait()

	if err := db.Disconnect(shutdownCtx); err != nil {
		log.Println("MongoDB disconnect:", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.Println("Redis close:", err)
		}
	}

	log.Println("Server stopped gracefully")
}
