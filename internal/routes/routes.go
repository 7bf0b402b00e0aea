package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/orderline-backend/internal/handlers"
	"github.com/Ananth-NQI/orderline-backend/internal/middleware"
)

const Version = "1.0.0"

// Handlers groups every HTTP handler the API mounts
type Handlers struct {
	Webhook  *handlers.WebhookHandler
	Stream   *handlers.StreamHandler
	Sessions *handlers.SessionHandler
	Orders   *handlers.OrderHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
}

// Options carries the secrets and flags routing depends on
type Options struct {
	Environment   string
	JWTSecret     string
	MetaAppSecret string
	TriggerSecret string
	Logger        *slog.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, h Handlers, opts Options) {
	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to Orderline Backend!",
			"version": Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"api":     "/api",
				"webhook": "/webhooks/whatsapp",
			},
		})
	})

	app.Get("/health", h.Health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhooks")
	webhooks.Get("/whatsapp", h.Webhook.Verify)
	if opts.MetaAppSecret == "" {
		opts.Logger.Warn("META_APP_SECRET not set, webhook signature validation disabled")
	}
	webhooks.Post("/whatsapp", middleware.ValidateMetaSignature(opts.MetaAppSecret, opts.Logger), h.Webhook.Receive)

	// ========== TEST ROUTES (Development Only) ==========
	if opts.Environment == "development" {
		app.Post("/test/whatsapp", h.Webhook.HandleTestMessage)
	}

	// ========== DASHBOARD API ==========
	api := app.Group("/api")

	// trigger-event is called by other processes, not by dashboard users
	api.Post("/merchants/:merchantId/trigger-event", middleware.RequireTriggerSecret(opts.TriggerSecret), h.Stream.TriggerEvent)

	auth := middleware.RequireAuth(opts.JWTSecret)

	merchants := api.Group("/merchants/:merchantId", auth, middleware.RequireMerchantAccess())
	merchants.Get("/stream", h.Stream.Stream)
	merchants.Get("/sessions", h.Sessions.List)
	merchants.Get("/orders", h.Orders.List)
	merchants.Patch("/orders/:orderId/verify-payment", h.Orders.VerifyPayment)
	merchants.Get("/business-hours", h.Admin.GetBusinessHours)
	merchants.Put("/business-hours", h.Admin.ReplaceBusinessHours)
	merchants.Get("/business-hours/status", h.Admin.BusinessHoursStatus)

	sessions := api.Group("/sessions", auth)
	sessions.Get("/:sessionId", h.Sessions.Get)
	sessions.Patch("/:sessionId/manual-mode", h.Sessions.SetManualMode)
	sessions.Post("/:sessionId/messages", h.Sessions.SendMessage)

	orders := api.Group("/orders", auth)
	orders.Get("/:orderId", h.Orders.Get)
	orders.Patch("/:orderId/status", h.Orders.UpdateStatus)

	lines := api.Group("/whatsapp-lines", auth)
	lines.Patch("/:lineId/bot-enabled", h.Admin.SetBotEnabled)
}
