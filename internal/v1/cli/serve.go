package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/parlorchat/parlor/internal/v1/bus"
	"github.com/parlorchat/parlor/internal/v1/config"
	"github.com/parlorchat/parlor/internal/v1/health"
	"github.com/parlorchat/parlor/internal/v1/history"
	"github.com/parlorchat/parlor/internal/v1/logging"
	"github.com/parlorchat/parlor/internal/v1/middleware"
	"github.com/parlorchat/parlor/internal/v1/ratelimit"
	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/tracing"
	"github.com/parlorchat/parlor/internal/v1/transport"
	"github.com/parlorchat/parlor/internal/v1/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	Long:  `Start the WebSocket relay. Configuration comes from the environment (or a .env file); see the repository README for the full variable list.`,
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	// --- Tracing (Optional) ---
	if cfg.OTelCollectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), "parlor-relay", cfg.OTelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing, continuing without it", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
			slog.Info("✅ Tracing initialized", "collector", cfg.OTelCollectorAddr)
		}
	}

	// --- Redis Bus Initialization (Optional) ---
	// Initialize Redis for distributed pub/sub if enabled
	var busService *bus.Service
	if cfg.RedisEnabled {
		var err error
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			busService = nil // Fallback to single-instance mode
		} else {
			slog.Info("✅ Redis pub/sub initialized for distributed messaging", "addr", cfg.RedisAddr)
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Durable History (Optional) ---
	var store types.HistoryStore
	if cfg.HistoryDBPath != "" {
		s, err := history.Open(cfg.HistoryDBPath)
		if err != nil {
			slog.Error("Failed to open history database, running memory-only", "error", err, "path", cfg.HistoryDBPath)
		} else {
			store = s
			defer func() { _ = s.Close() }()
			slog.Info("✅ Durable history enabled", "path", cfg.HistoryDBPath)
		}
	}

	// --- Rate Limiting ---
	rateLimiter, err := ratelimit.NewRateLimiter(cfg, busService.Client())
	if err != nil {
		slog.Error("Failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Create Hub with Dependencies ---
	allowedOrigins := parseAllowedOrigins(cfg.AllowedOrigins)
	roomOpts := room.Options{
		MaxHistoryLength: cfg.MaxHistoryLength,
		MaxHistoryBytes:  cfg.MaxHistoryBytes,
		StalenessWindow:  cfg.StalenessWindow,
		InstanceID:       uuid.New().String(),
	}

	var busDep types.BusService
	if busService != nil {
		busDep = busService
	}

	hub := transport.NewHub(busDep, store, allowedOrigins, roomOpts, rateLimiter)

	// --- Set up Server ---
	if !cfg.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Cors
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	router.Use(cors.New(corsConfig))

	// Error handling and request correlation
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(rateLimiter.GlobalMiddleware())

	// Routing
	wsGroup := router.Group("/ws")
	wsGroup.Use(rateLimiter.RoomsMiddleware())
	{
		wsGroup.GET("/rooms/:roomId", hub.ServeWs)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(busService)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Relay server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context is used to inform the server it has 30 seconds to finish
	// the requests it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all active rooms and WebSocket connections gracefully
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during Hub shutdown:", "error", err)
	}

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	// Close Redis connection if it was initialized
	if busService != nil {
		if err := busService.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}

	slog.Info("Server exiting")
}

// parseAllowedOrigins splits the comma-separated ALLOWED_ORIGINS value,
// falling back to the local frontend dev server.
func parseAllowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}

	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
