package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"timekill-backend/internal/config"
	"timekill-backend/internal/database"
	"timekill-backend/internal/handlers"
	"timekill-backend/internal/middleware"
	"timekill-backend/internal/models"
	"timekill-backend/internal/repository"
	"timekill-backend/internal/router"
	"timekill-backend/internal/services"
	"timekill-backend/internal/websocket"
	"timekill-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting TimeKill Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	subscriptionRepo := repository.NewSubscriptionRepo(pool)
	humanizerRepo := repository.NewHumanizerRepo(pool)
	setRepo := repository.NewSetRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Clients ────
	rewriteService, err := services.NewRewriteService(cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
	if err != nil {
		log.Fatalf("✗ Gemini rewrite client initialization failed: %v", err)
	}
	defer rewriteService.Close()
	log.Println("✓ Gemini rewrite client initialized")

	cacheGateway := services.NewCacheGateway(redisClients.Cache)

	extractionService, err := services.NewExtractionService(
		cfg.GeminiAPIKey,
		cfg.GeminiConcurrentReqs,
		setRepo,
		jobRepo,
		cacheGateway,
		redisClients.Cache,
	)
	if err != nil {
		log.Fatalf("✗ Gemini extraction client initialization failed: %v", err)
	}
	defer extractionService.Close()
	log.Println("✓ Gemini extraction client initialized")

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	emailService := services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.FrontendURL)
	fileExtractService := services.NewFileExtractService()
	authService := services.NewAuthService(userRepo, redisClients.Cache, jwtAuth, emailService)

	detector := services.NewSaplingClient(cfg.SaplingAPIKey, cfg.SaplingAPIURL)
	scorer := services.NewWordOverlapScorer()
	entitlements := services.NewEntitlementService(subscriptionRepo, humanizerRepo, models.DefaultPlanLimits())

	humanizerService := services.NewHumanizerService(
		detector,
		rewriteService,
		scorer,
		cacheGateway,
		humanizerRepo,
		entitlements,
		redisClients.Cache,
		cfg.HumanizerDailyLimit,
	)

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	humanizerHandler := handlers.NewHumanizerHandler(humanizerService, humanizerRepo, entitlements)
	pairsHandler := handlers.NewPairsHandler(
		setRepo,
		jobRepo,
		cacheGateway,
		entitlements,
		fileExtractService,
		redisClients.Cache,
		cfg.StoragePath,
		cfg.ExtractionDailyLimit,
	)
	userHandler := handlers.NewUserHandler(userRepo, humanizerRepo, entitlements)
	jobsHandler := handlers.NewJobsHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(redisClients.Cache, extractionService, jobRepo, setRepo, userRepo, emailService, 5)
	workerPool.Start()
	log.Println("✓ Worker pool started (5 goroutines)")

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		humanizerHandler,
		pairsHandler,
		userHandler,
		jobsHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ TimeKill Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
