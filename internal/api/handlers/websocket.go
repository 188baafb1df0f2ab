package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/room"
	"github.com/massarena/backend/internal/ws"
)

// GameWebSocket redeems a join grant and attaches the player's socket. A
// spawn grant claims its deposit here, so a grant that is never redeemed
// leaves the deposit usable.
func GameWebSocket(cfg *config.Config, rm *room.Room, hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token is required"})
			return
		}

		grant, err := parseGrant(cfg.JWTSecret, token)
		if err != nil {
			log.Printf("[API] Rejected ws grant: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired grant"})
			return
		}

		if grant.Decision == "spawn" {
			ok, err := rm.Spawn(c.Request.Context(), grant.SessionID, grant.Wallet, grant.DisplayName, grant.DepositID, grant.SpawnAmount)
			if err != nil {
				log.Printf("[API] Spawn failed for session %s: %v", grant.SessionID, err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
				return
			}
			if !ok {
				c.JSON(http.StatusConflict, gin.H{"error": "deposit already used"})
				return
			}
		}

		rm.HandleConnect(grant.SessionID)
		if err := hub.Serve(c.Writer, c.Request, grant.SessionID, rm); err != nil {
			log.Printf("[API] WebSocket upgrade failed for session %s: %v", grant.SessionID, err)
		}
	}
}
