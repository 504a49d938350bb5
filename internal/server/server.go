// Package server contains the HTTP handlers for the comment API endpoints.
package server

import (
	"context"
	"fmt"
	"time"

	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/middleware"
	"inkwell/internal/repository"
	"inkwell/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers. Comments exist in
// two parallel scopes (novel-wide and per-chapter) that share one shape but
// live in separate collections, so the server carries one CommentService
// per scope.
type Server struct {
	config          *config.Config
	db              *gorm.DB
	pages           *cache.Cache
	userRepo        repository.UserRepository
	novelComments   *service.CommentService
	chapterComments *service.CommentService
	promMiddleware  *fiberprometheus.FiberPrometheus
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	pages := cache.New(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, pages)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, pages *cache.Cache) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	novelRepo := repository.NewNovelCommentRepository(db)
	chapterRepo := repository.NewChapterCommentRepository(db)

	return newServer(cfg, db, pages, novelRepo, chapterRepo, userRepo), nil
}

// NewServerWithRepositories wires a Server over arbitrary repository
// implementations. Handler tests and Postgres-free local development use it
// with the in-memory repositories.
func NewServerWithRepositories(
	cfg *config.Config,
	novelRepo, chapterRepo repository.CommentRepository,
	userRepo repository.UserRepository,
	pages *cache.Cache,
) *Server {
	return newServer(cfg, nil, pages, novelRepo, chapterRepo, userRepo)
}

func newServer(
	cfg *config.Config,
	db *gorm.DB,
	pages *cache.Cache,
	novelRepo, chapterRepo repository.CommentRepository,
	userRepo repository.UserRepository,
) *Server {
	s := &Server{
		config:         cfg,
		db:             db,
		pages:          pages,
		userRepo:       userRepo,
		promMiddleware: middleware.InitMetrics("inkwell-api"),
	}

	// Novel and chapter existence checks belong to the catalog service;
	// until it is wired in, every scope is accepted.
	s.novelComments = service.NewCommentService(novelRepo, userRepo, service.AllowAllScopes, userRepo.IsModerator, pages)
	s.chapterComments = service.NewCommentService(chapterRepo, userRepo, service.AllowAllScopes, userRepo.IsModerator, pages)
	return s
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// OpenTelemetry spans; must run before ContextMiddleware so the trace
	// ID local is available to the context logger.
	app.Use(middleware.TracingMiddleware())

	// Context middleware to propagate request ID, user ID, and trace ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus request metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on errors.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Prometheus scrape endpoint
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Listing and posting are addressed by scope; a chapter_id selects the
	// chapter-scoped collection, its absence the novel-scoped one.
	api.Get("/novels/:novelId/comments", middleware.OptionalAuth, s.ListComments)
	api.Post("/novels/:novelId/comments", middleware.AuthRequired, s.CreateComment)

	// Operations on existing comments are addressed per collection.
	comments := api.Group("/comments")
	comments.Get("/:commentId/replies", middleware.OptionalAuth, s.ListReplies(false))
	comments.Patch("/:commentId", middleware.AuthRequired, s.EditComment(false))
	comments.Delete("/:commentId", middleware.AuthRequired, s.DeleteComment(false))
	comments.Post("/:commentId/like", middleware.AuthRequired, s.ToggleLike(false))

	chapterComments := api.Group("/chapter-comments")
	chapterComments.Get("/:commentId/replies", middleware.OptionalAuth, s.ListReplies(true))
	chapterComments.Patch("/:commentId", middleware.AuthRequired, s.EditComment(true))
	chapterComments.Delete("/:commentId", middleware.AuthRequired, s.DeleteComment(true))
	chapterComments.Post("/:commentId/like", middleware.AuthRequired, s.ToggleLike(true))
}

// Shutdown releases server resources (DB pool, Redis connection).
func (s *Server) Shutdown(ctx context.Context) error {
	if s.pages != nil {
		_ = s.pages.Close()
	}
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

// scopedService picks the comment service for a collection.
func (s *Server) scopedService(chapterScoped bool) *service.CommentService {
	if chapterScoped {
		return s.chapterComments
	}
	return s.novelComments
}
