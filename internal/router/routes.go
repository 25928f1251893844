package router

import (
	"github.com/labstack/echo/v4"

	"github.com/octobees/supplier-outreach/internal/auth"
	"github.com/octobees/supplier-outreach/internal/config"
	"github.com/octobees/supplier-outreach/internal/handler"
	middlewarepkg "github.com/octobees/supplier-outreach/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Health    *handler.HealthHandler
	Auth      *handler.AuthHandler
	Operators *handler.OperatorAdminHandler
	Searches  *handler.SearchHandler
	Queue     *handler.QueueHandler
	Metrics   *handler.MetricsHandler
	Webhooks  *handler.WebhookHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, jwtManager *auth.JWTManager, handlers Handlers) {
	e.GET("/healthz", handlers.Health.Check)
	e.POST("/auth/login", handlers.Auth.Login)

	webhooks := e.Group("/webhooks")
	webhooks.POST("/inbound", handlers.Webhooks.Inbound)
	webhooks.POST("/sendgrid-events", handlers.Webhooks.ProviderEvents)

	secured := e.Group("")
	secured.Use(middlewarepkg.JWT(jwtManager))

	secured.POST("/searches", handlers.Searches.Create, middlewarepkg.SearchRateLimiter(cfg.RateLimitSearch))
	secured.GET("/searches", handlers.Searches.List)
	secured.GET("/searches/:id", handlers.Searches.Get)
	secured.GET("/suppliers/:id", handlers.Searches.GetSupplier)
	secured.GET("/queue/health", handlers.Queue.Health)
	secured.GET("/metrics", handlers.Metrics.Get)

	admin := secured.Group("/admin", middlewarepkg.RequireRole(auth.RoleAdmin))
	admin.GET("/operators", handlers.Operators.List)
	admin.POST("/operators", handlers.Operators.Create)
	admin.PATCH("/operators/:id", handlers.Operators.Update)
	admin.DELETE("/operators/:id", handlers.Operators.Delete)
}
