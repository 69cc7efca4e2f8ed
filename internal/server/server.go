// Package server contains the HTTP and WebSocket transport of the GraphQL API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"socialgraph/internal/config"
	"socialgraph/internal/graph"
	"socialgraph/internal/loaders"
	"socialgraph/internal/middleware"
	"socialgraph/internal/models"
	"socialgraph/internal/notifications"
	"socialgraph/internal/observability"
	"socialgraph/internal/repository"
	"socialgraph/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	store          *repository.Store
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier
	executor       *graph.Executor
	wsLog          *observability.WSLogger
	// initTimeout bounds the wait for connection_init on subscription sockets.
	initTimeout time.Duration
}

// NewServerWithDeps creates a Server using an already-seeded store and an
// optional Redis client.
func NewServerWithDeps(cfg *config.Config, store *repository.Store, redisClient *redis.Client) (*Server, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	prom := middleware.InitMetrics("socialgraph-api")
	notifier := notifications.NewNotifier(redisClient, notifications.NewBroker(notifications.DefaultSubscriberBuffer))

	executor, err := graph.NewExecutor(graph.Options{
		Services: graph.Services{
			Users:     service.NewUserService(store),
			Posts:     service.NewPostService(store, notifier),
			Comments:  service.NewCommentService(store),
			Reactions: service.NewReactionService(store),
		},
		Source:  store,
		Events:  notifier.Broker(),
		Limiter: middleware.NewMutationLimiter(redisClient, cfg.MutationRateLimit, time.Minute),
		Loader: loaders.Options{
			Wait:     cfg.LoaderWait,
			MaxBatch: cfg.LoaderMaxBatch,
		},
		MaxDepth: cfg.GraphQLMaxDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("build graphql schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:         cfg,
		store:          store,
		redis:          redisClient,
		promMiddleware: prom,
		shutdownCtx:    ctx,
		shutdownFn:     cancel,
		notifier:       notifier,
		executor:       executor,
		wsLog:          observability.NewWSLogger("/subscriptions"),
		initTimeout:    connectionInitWait,
	}, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and client IP
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	app.Use(middleware.TracingMiddleware())

	// CORS runs before the limiter so rejected browser requests still carry CORS headers.
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.config.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol",
		MaxAge:       86400,
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return models.RespondWithError(c, fiber.StatusTooManyRequests, models.NewRateLimitedError())
		},
	}))

	app.Use(middleware.OptionalAuth(s.config.JWTSecret))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Post("/graphql", s.GraphQL)
	app.Get("/graphql", s.GraphQL)

	app.Use("/subscriptions", s.UpgradeRequired())
	app.Get("/subscriptions", s.SubscriptionHandler())
}

// App builds the Fiber application. It is created once per Server.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName: "socialgraph",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: a missing
// client is reported as disabled, a failing one makes the service unready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"redis": redisStatus,
		},
		"store": s.store.Stats(),
		"time":  time.Now(),
	})
}

// Start wires the Redis event relay and serves HTTP until Shutdown.
func (s *Server) Start() error {
	if err := s.notifier.StartPostSubscriber(s.shutdownCtx); err != nil {
		// Events from other instances are lost, local delivery still works.
		middleware.Logger.Error("failed to start post subscriber", slog.String("error", err.Error()))
	}

	app := s.App()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stops the relay goroutine and every open subscription.
	s.shutdownFn()

	var err error
	if s.app != nil {
		if serr := s.app.ShutdownWithContext(ctx); serr != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", serr.Error()))
			err = serr
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return err
}
