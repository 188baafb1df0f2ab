package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/ledger"
	"github.com/massarena/backend/internal/room"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck returns server health plus the room's ledger snapshot.
func HealthCheck(cfg *config.Config, rm *room.Room, l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		balances, err := l.Balances(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "ledger unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "massarena-room",
			"version":   version,
			"server_id": cfg.ServerID,
			"uptime":    time.Since(startTime).String(),
			"players":   rm.PlayerCount(),
			"balances":  balances,
		})
	}
}
