package api

import (
	"github.com/gin-gonic/gin"

	"github.com/massarena/backend/internal/api/handlers"
	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/ledger"
	"github.com/massarena/backend/internal/room"
	"github.com/massarena/backend/internal/ticket"
	"github.com/massarena/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, rm *room.Room, hub *ws.Hub, l *ledger.Ledger, issuer *ticket.Issuer) {
	// CORS middleware for browser clients
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck(cfg, rm, l))

		v1.POST("/join", handlers.Join(cfg, rm))
		v1.GET("/ws", handlers.GameWebSocket(cfg, rm, hub))

		v1.GET("/ticket/:session", handlers.GetTicket(issuer))
	}
}
