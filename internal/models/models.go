package models

import (
	"database/sql"
	"time"
)

// LedgerAccount is one balance row of the shared ledger, versioned for
// optimistic commits.
type LedgerAccount struct {
	ServerID  string    `db:"server_id" json:"server_id"`
	Account   string    `db:"account" json:"account"`
	Balance   int64     `db:"balance" json:"balance"`
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AppliedEvent marks an external deposit/exit event as processed, at most
// once, keyed by event id.
type AppliedEvent struct {
	ServerID  string    `db:"server_id" json:"server_id"`
	EventID   string    `db:"event_id" json:"event_id"`
	AppliedAt time.Time `db:"applied_at" json:"applied_at"`
}

// ExitReservation is a hold against the bankroll for a pending exit ticket.
type ExitReservation struct {
	ServerID  string    `db:"server_id" json:"server_id"`
	SessionID string    `db:"session_id" json:"session_id"`
	Payout    int64     `db:"payout" json:"payout"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Deposit registers an applied on-chain deposit and which session, if any,
// spawned from it.
type Deposit struct {
	ServerID       string         `db:"server_id" json:"server_id"`
	EventID        string         `db:"event_id" json:"event_id"`
	Wallet         string         `db:"wallet" json:"wallet"`
	SpawnAmount    int64          `db:"spawn_amount" json:"spawn_amount"`
	WorldAmount    int64          `db:"world_amount" json:"world_amount"`
	AppliedAt      time.Time      `db:"applied_at" json:"applied_at"`
	SpawnSessionID sql.NullString `db:"spawn_session_id" json:"spawn_session_id,omitempty"`
}

// FeedCursor is the durable position in one external event stream.
type FeedCursor struct {
	ServerID  string    `db:"server_id" json:"server_id"`
	Stream    string    `db:"stream" json:"stream"`
	Cursor    string    `db:"cursor" json:"cursor"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ExitTicket is the audit row for a signed exit claim.
type ExitTicket struct {
	ID         int          `db:"id" json:"id"`
	ServerID   string       `db:"server_id" json:"server_id"`
	SessionID  string       `db:"session_id" json:"session_id"`
	Player     string       `db:"player" json:"player"`
	Payout     int64        `db:"payout" json:"payout"`
	Deadline   time.Time    `db:"deadline" json:"deadline"`
	Signature  string       `db:"signature" json:"signature"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	RedeemedAt sql.NullTime `db:"redeemed_at" json:"redeemed_at,omitempty"`
}
