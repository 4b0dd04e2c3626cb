package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wavelink-backend/internal/database"
	callHandler "wavelink-backend/internal/handler/http/call"
	groupHandler "wavelink-backend/internal/handler/http/group"
	"wavelink-backend/internal/handler/ws"
	"wavelink-backend/internal/middleware"
	"wavelink-backend/internal/repository/cockroach"
	redisRepo "wavelink-backend/internal/repository/redis"
	callService "wavelink-backend/internal/service/call"
	groupService "wavelink-backend/internal/service/group"
	presenceService "wavelink-backend/internal/service/presence"
	"wavelink-backend/pkg/config"
	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/jwt"
	"wavelink-backend/pkg/logger"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	if err := logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Path:   cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. Token verifier
	verifier := jwt.NewVerifier(cfg.JWT.Secret)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 4. Connect to CockroachDB
	db, err := database.NewDB(rootCtx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to CockroachDB",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database))

	// 5. Connect to Redis
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	redisDB.StartHealthCheck(rootCtx, 10*time.Second)
	logger.Info("Connected to Redis", zap.String("host", cfg.Redis.Host))

	// 6. Repositories
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	userRepo := cockroach.NewUserRepository(db.Pool)
	contactRepo := cockroach.NewContactRepository(db.Pool)
	callRepo := cockroach.NewCallRepository(db.Pool)
	groupRepo := cockroach.NewGroupRepository(db.Pool)

	// 7. Connection registry and services
	hub := ws.NewHub(redisDB.Client)
	presenceSvc := presenceService.NewService(
		presenceRepo, contactRepo, userRepo, hub, hub, cfg.Realtime.StalenessThreshold)
	callSvc := callService.NewService(callRepo, userRepo, hub, hub)
	groupSvc := groupService.NewService(groupRepo, userRepo, hub)

	// 8. Background sweeps
	go presenceSvc.StartSweep(rootCtx, cfg.Realtime.HeartbeatInterval)
	go callSvc.StartReconciliation(rootCtx, constants.CallReconcileInterval, constants.StaleCallTimeout)

	// 9. Handlers
	gateway := ws.NewGateway(hub, verifier, presenceSvc, callSvc, cfg.Realtime.MaxConnections)
	groupHdlr := groupHandler.NewHandler(groupSvc)
	callHdlr := callHandler.NewHandler(callSvc)

	// 10. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.Prometheus())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.Server.ServiceName,
			"time":    time.Now().UTC(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler())

	v1 := router.Group("/v1")
	{
		// the gateway authenticates the WebSocket itself via query token
		v1.GET("/ws", gateway.ServeWS)

		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(verifier))
		groupHdlr.RegisterRoutes(authed)
		callHdlr.RegisterRoutes(authed)
	}

	// 11. Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Realtime service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("ws_endpoint", "/v1/ws"))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 12. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	rootCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
