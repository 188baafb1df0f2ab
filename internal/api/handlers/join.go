package handlers

import (
	"log"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/room"
)

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type joinRequest struct {
	Wallet      string `json:"wallet" binding:"required"`
	DisplayName string `json:"display_name"`
}

// Join decides how a wallet may enter the room and, when it may, hands back a
// short-lived grant the ws endpoint redeems.
func Join(cfg *config.Config, rm *room.Room) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wallet is required"})
			return
		}
		if !walletPattern.MatchString(req.Wallet) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "wallet must be a 0x-prefixed 20-byte hex address"})
			return
		}
		if len(req.DisplayName) > 24 {
			req.DisplayName = req.DisplayName[:24]
		}

		decision, err := rm.Join(c.Request.Context(), req.Wallet, req.DisplayName)
		if err != nil {
			log.Printf("[API] Join failed for wallet %s: %v", req.Wallet, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger unavailable"})
			return
		}

		if decision.Decision == "deposit_required" {
			c.JSON(http.StatusOK, gin.H{"decision": decision.Decision})
			return
		}

		token, err := signGrant(cfg.JWTSecret, JoinGrant{
			Decision:    decision.Decision,
			SessionID:   decision.SessionID,
			Wallet:      req.Wallet,
			DisplayName: req.DisplayName,
			DepositID:   decision.DepositID,
			SpawnAmount: decision.SpawnAmount,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign grant"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"decision":   decision.Decision,
			"session_id": decision.SessionID,
			"token":      token,
		})
	}
}
