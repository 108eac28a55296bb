package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"markit/internal/auth"
	"markit/internal/config"
	"markit/internal/dashboard"
	"markit/internal/httpmiddleware"
	"markit/internal/hub"
	"markit/internal/lecture"
	"markit/internal/notify"
	"markit/internal/queue"
	"markit/internal/stats"
	"markit/internal/store"
	"markit/internal/subject"
	"markit/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	wsHub := hub.New()
	go wsHub.Run(ctx)

	var notifier notify.Notifier
	if cfg.NotifyBackend == "redis" {
		notifier = notify.NewRedis(redisClient.Client, "")
		go notify.RunBridge(ctx, redisClient.Client, "", wsHub)
	} else {
		notifier = notify.NewMemory(wsHub)
	}

	statsRepo := stats.NewRepository(db.Client)
	engine := stats.NewEngine(statsRepo)

	var q queue.Queue
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, "")
	} else {
		// In-memory queue needs an in-process consumer; retries are
		// drained here instead of by the worker binary.
		mem := queue.NewInMemory(64)
		go drainRecomputes(ctx, mem, engine)
		q = mem
	}
	rec := queue.NewRecomputeRetry(engine, q)

	userRepo := user.NewRepository(db.Client)
	userSvc := user.NewService(userRepo, engine, user.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	userHandler := user.NewHandler(userSvc)

	subjectRepo := subject.NewRepository(db.Client)
	subjectSvc := subject.NewService(subjectRepo, userRepo, engine, notifier)
	subjectHandler := subject.NewHandler(subjectSvc)

	lectureRepo := lecture.NewRepository(db.Client)
	lectureSvc := lecture.NewService(lectureRepo, rec, notifier)
	lectureHandler := lecture.NewHandler(lectureSvc, engine)

	dashRepo := dashboard.NewRepository(db.Client, subjectRepo, lectureRepo)
	dashSvc := dashboard.NewService(userSvc, lectureSvc, engine, dashRepo, rec)
	dashHandler := dashboard.NewHandler(dashSvc, cfg.DemoEnabled)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api")
	userHandler.RegisterAuth(api.Group("/auth"))

	authed := api.Group("", auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	userHandler.RegisterUsers(authed.Group("/users"))
	subjectHandler.Register(authed.Group("/subjects"))
	lectureHandler.Register(authed.Group("/lectures"))
	dashHandler.Register(authed.Group("/dashboard"))

	r.GET("/ws", hub.Handler(wsHub, userRepo, cfg.JWTSigningKey, cfg.JWTIssuer))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// drainRecomputes retries queued recomputes against the local engine.
func drainRecomputes(ctx context.Context, q queue.Queue, engine *stats.Engine) {
	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Printf("recompute queue consume failed: %v", err)
		return
	}
	for msg := range msgs {
		if msg.Type != queue.MsgRecompute {
			continue
		}
		if _, err := engine.Recompute(ctx, string(msg.Body)); err != nil {
			log.Printf("queued recompute for subject %s failed: %v", msg.Body, err)
		}
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
