package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/assignhub/apiserver/config"
	"github.com/assignhub/apiserver/internal/auth"
	"github.com/assignhub/apiserver/internal/db"
	"github.com/assignhub/apiserver/internal/handlers"
	"github.com/assignhub/apiserver/internal/logger"
	"github.com/assignhub/apiserver/internal/mq"
	"github.com/assignhub/apiserver/internal/ratelimit"
	"github.com/assignhub/apiserver/internal/services"
	"github.com/assignhub/apiserver/internal/storage"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// Server wraps the HTTP server, router and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	db         *sql.DB
	redis      *redis.Client
	queue      *mq.MQ
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	log := logger.New(cfg.LogLevel)

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	codec, err := auth.NewCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	s := &Server{logger: log}
	ok := false
	defer func() {
		if !ok {
			s.closeResources()
		}
	}()

	s.db, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiter, err := s.loginLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	s.queue, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(s.db)
	assignmentRepo := store.NewAssignmentRepository(s.db)

	userService := services.NewUserService(userRepo,
		services.WithLoginLimiter(limiter),
		services.WithAdminSignup(cfg.Auth.AllowAdminSignup),
		services.WithUserLogger(log),
	)

	assignmentOpts := []services.AssignmentServiceOption{services.WithAssignmentLogger(log)}
	if objects != nil {
		assignmentOpts = append(assignmentOpts, services.WithObjectStore(objects))
	}
	if s.queue != nil {
		assignmentOpts = append(assignmentOpts, services.WithEventPublisher(s.queue, services.EventChannels{
			Uploaded: cfg.MQ.UploadedChannel,
			Reviewed: cfg.MQ.ReviewedChannel,
		}))
	}
	assignmentService := services.NewAssignmentService(assignmentRepo, userService, assignmentOpts...)

	gate := auth.RequireAuth(codec, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, userService, codec, gate, log)
	handlers.AssignmentRouter(router, assignmentService, gate, log)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server configured",
		slog.Int("port", port),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("mq_backend", cfg.MQ.Backend),
		slog.Bool("redis_limiter", s.redis != nil),
		slog.Duration("token_ttl", codec.TTL()),
	)
	ok = true
	return s, nil
}

func (s *Server) loginLimiter(ctx context.Context, cfg config.Config) (ratelimit.LoginLimiter, error) {
	if cfg.LoginLimit.MaxAttempts <= 0 {
		return ratelimit.Nop{}, nil
	}
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemoryLimiter(cfg.LoginLimit.MaxAttempts, cfg.LoginLimit.Window), nil
	}
	client, err := ratelimit.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.redis = client
	return ratelimit.NewRedisLimiter(client, cfg.LoginLimit.MaxAttempts, cfg.LoginLimit.Window), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then closes the connections the server owns.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", logger.Err(err))
		}
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
