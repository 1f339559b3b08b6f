package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/gallerysync/api/internal/middleware"
)

// NewApp creates the fiber app with the global middleware stack
func NewApp(bodyLimitMB int, accessLog bool) *fiber.App {
	if bodyLimitMB <= 0 {
		bodyLimitMB = 50
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler,
		BodyLimit:             bodyLimitMB * 1024 * 1024,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if accessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
		}))
	}
	return app
}

// Routes wires the handlers onto an app
type Routes struct {
	Bulk        *BulkHandler
	Gallery     *GalleryHandler
	Health      *HealthHandler
	RateLimiter *middleware.RateLimiter
	BulkPerHour int
	Metrics     fiber.Handler
}

func (r Routes) Register(app *fiber.App) {
	if r.Health != nil {
		app.Get("/health", r.Health.Health)
	}
	if r.Metrics != nil {
		app.Get("/metrics", r.Metrics)
	}

	api := app.Group("/api")

	bulk := api.Group("/bulk")
	if r.RateLimiter != nil {
		bulk.Post("/gallery", r.RateLimiter.BulkLimit(r.BulkPerHour), r.Bulk.Submit)
	} else {
		bulk.Post("/gallery", r.Bulk.Submit)
	}
	bulk.Get("/:batchId/status", r.Bulk.Status)

	if r.Gallery != nil {
		api.Get("/gallery/:sku", r.Gallery.Get)
	}
}
