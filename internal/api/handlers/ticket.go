package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/massarena/backend/internal/ticket"
)

// GetTicket returns the live exit ticket for a session so a client that lost
// the ws frame can still fetch its claim before the deadline.
func GetTicket(issuer *ticket.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("session")
		t, err := issuer.Get(c.Request.Context(), sessionID)
		if errors.Is(err, ticket.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no live ticket for session"})
			return
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ticket store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ticket": t})
	}
}
