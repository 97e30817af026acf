package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Pool, cfg.Version).WithBackground(cfg.Scans, cfg.Tasks)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	api := router.Group("/api")

	if cfg.Catalog != nil {
		books := NewBooksController(cfg.Catalog)
		api.POST("/books", books.Add)
		api.GET("/books", books.List)
		api.GET("/books/:id", books.Get)
		api.DELETE("/books/:id", books.Remove)
		api.PUT("/books/:id/stock", books.AdjustStock)
		api.PUT("/books/:id/status", books.SetStatus)
	}

	if cfg.Borrows != nil {
		borrows := NewBorrowsController(cfg.Borrows)
		api.POST("/borrows", borrows.Borrow)
		api.GET("/borrows/:id", borrows.Get)
		api.POST("/borrows/:id/return", borrows.Return)
		api.GET("/overdue", borrows.ListOverdue)
		api.GET("/users/:id/borrows", borrows.ListByUser)
		api.GET("/books/:id/borrows", borrows.ListByBook)
	}

	if cfg.Reservations != nil {
		reservations := NewReservationsController(cfg.Reservations)
		api.POST("/reservations", reservations.Reserve)
		api.GET("/reservations/:id", reservations.Get)
		api.POST("/reservations/:id/cancel", reservations.Cancel)
		api.POST("/reservations/:id/complete", reservations.Complete)
		api.GET("/users/:id/reservations", reservations.ListByUser)
		api.GET("/books/:id/queue", reservations.Queue)
		api.GET("/books/:id/queue/position", reservations.Position)
		api.POST("/books/:id/queue/process", reservations.Process)
	}

	if cfg.Scans != nil {
		scans := NewScansController(cfg.Scans)
		api.GET("/scans", scans.Status)
		api.POST("/scans/:job", scans.Run)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		api.GET("/audit/events", auditController.Events)
		api.GET("/audit/history/:entity/:id", auditController.History)
	}

	return router
}

// requestLogger writes one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= 500 {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}
