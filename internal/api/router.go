package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/proctor/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/proctor/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/proctor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/proctor/internal/webhook"
	"github.com/saturnino-fabrica-de-software/proctor/internal/ws"
)

type Dependencies struct {
	Violations    handler.ViolationService
	Verifier      handler.VerificationService
	References    handler.ReferenceImageStore
	Hub           *ws.Hub
	WebhookWorker *webhook.Worker
	HealthChecks  map[string]handler.HealthCheck

	// APIKey guards every proctoring route; empty disables auth
	APIKey       string
	RateLimitMax int
}

type Router struct {
	app          *fiber.App
	logger       *slog.Logger
	deps         *Dependencies
	rateLimiter  *middleware.RateLimiter
	cancelWorker context.CancelFunc
	cancelHub    context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Proctor API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var checks map[string]handler.HealthCheck
	if r.deps != nil {
		checks = r.deps.HealthChecks
	}
	healthHandler := handler.NewHealthHandler(checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	// Only configure proctoring routes if dependencies were provided
	if r.deps == nil {
		return
	}

	if r.deps.Hub != nil {
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.deps.Hub.Run(hubCtx)
	}

	if r.deps.WebhookWorker != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancelWorker = cancel
		go r.deps.WebhookWorker.Run(ctx)
	}

	api := r.app.Group("/")
	api.Use(middleware.Auth(r.deps.APIKey))

	limiterCfg := middleware.DefaultRateLimiterConfig()
	if r.deps.RateLimitMax > 0 {
		limiterCfg.Max = r.deps.RateLimitMax
	}
	limiterCfg.Window = time.Minute
	limiterCfg.PerEndpoint = middleware.IdentityRateLimits()
	r.rateLimiter = middleware.NewRateLimiter(limiterCfg)
	api.Use(r.rateLimiter.Handler())

	// Frame analysis and violation log
	proctorHandler := handler.NewProctorHandler(r.deps.Violations, r.logger)
	api.Post("/analyze_frame", proctorHandler.AnalyzeFrame)
	api.Get("/get_violations", proctorHandler.GetViolations)
	api.Post("/report_violation", proctorHandler.ReportViolation)

	// Reference photos and identity verification
	identityHandler := handler.NewIdentityHandler(r.deps.Verifier, r.deps.References, r.logger)
	api.Post("/upload_face_image", identityHandler.UploadFaceImage)
	api.Get("/get_face_images", identityHandler.GetFaceImages)
	api.Post("/verify_face", identityHandler.VerifyFace)
	api.Get("/face_verification_status", identityHandler.VerificationStatus)
	api.Post("/load_reference_images", identityHandler.LoadReferenceImages)

	// Live violation feed for proctors
	if r.deps.Hub != nil {
		api.Get("/ws/exams/:exam_id", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	// Stop webhook worker
	if r.cancelWorker != nil {
		r.cancelWorker()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
