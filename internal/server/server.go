package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"
	"storefront/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the external collaborators the server is built from
type Dependencies struct {
	Database  database.Service
	Redis     *redis.Client
	Gateway   payment.Gateway
	Publisher events.OrderPublisher
}

type Server struct {
	*http.Server
	config  *config.Config
	logger  *zap.Logger
	deps    Dependencies
	sweeper *worker.ReservationSweeper
}

// NewRedisClient creates the client backing the rate limiter
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	db := deps.Database.DB()

	// Initialize repositories
	repos := repository.NewRepositories(db)
	tx := repository.NewTransactor(db)

	// Initialize services
	cartService := service.NewCartService(repos, cfg.Cart.ReservationTTL, logger)
	orderService := service.NewOrderService(tx, repos.Orders, deps.Gateway, deps.Publisher, logger)
	paymentService := service.NewPaymentService(repos.Carts, deps.Gateway, cfg.Stripe.Currency, logger)
	productService := service.NewProductService(repos, tx, logger)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Server.Env == "development"))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := deps.Database.Health()
		status := http.StatusOK
		if health["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Handle("/metrics", metrics.Handler())

	auth := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	limit := func(prefix string) func(http.Handler) http.Handler {
		return custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "ratelimit:" + prefix,
		}, logger)
	}

	// Register routes
	transport.NewProductHandler(productService, logger).
		RegisterRoutes(router, auth, custommiddleware.RequireAdmin(logger))
	transport.NewCartHandler(cartService, logger).
		RegisterRoutes(router, auth, limit("cart"))
	transport.NewOrderHandler(orderService, logger).
		RegisterRoutes(router, auth, limit("orders"))
	transport.NewPaymentHandler(paymentService, logger).
		RegisterRoutes(router, auth, limit("payment"))

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config:  cfg,
		logger:  logger,
		deps:    deps,
		sweeper: worker.NewReservationSweeper(repos.Carts, cfg.Cart.SweepInterval, logger),
	}
}

// RunBackground runs the reservation sweeper until ctx is cancelled
func (s *Server) RunBackground(ctx context.Context) {
	s.sweeper.Run(ctx)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.deps.Database != nil {
		if err := s.deps.Database.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
