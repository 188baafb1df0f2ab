package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// grantTTL bounds how long a join decision stays redeemable at the ws
// endpoint.
const grantTTL = 60 * time.Second

// JoinGrant carries a join decision from /join to /ws so the socket endpoint
// needs no state of its own.
type JoinGrant struct {
	Decision    string
	SessionID   string
	Wallet      string
	DisplayName string
	DepositID   string
	SpawnAmount int64
}

func signGrant(secret string, g JoinGrant) (string, error) {
	claims := jwt.MapClaims{
		"decision":     g.Decision,
		"session_id":   g.SessionID,
		"wallet":       g.Wallet,
		"display_name": g.DisplayName,
		"deposit_id":   g.DepositID,
		"spawn_amount": g.SpawnAmount,
		"exp":          time.Now().Add(grantTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseGrant(secret, tokenString string) (*JoinGrant, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid grant")
	}

	g := &JoinGrant{}
	g.Decision, _ = claims["decision"].(string)
	g.SessionID, _ = claims["session_id"].(string)
	g.Wallet, _ = claims["wallet"].(string)
	g.DisplayName, _ = claims["display_name"].(string)
	g.DepositID, _ = claims["deposit_id"].(string)
	if amt, ok := claims["spawn_amount"].(float64); ok {
		g.SpawnAmount = int64(amt)
	}
	if g.Decision == "" || g.SessionID == "" || g.Wallet == "" {
		return nil, errors.New("grant missing required claims")
	}
	return g, nil
}
