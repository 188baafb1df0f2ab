package ledger

import (
	"context"
	"errors"
	"time"
)

// Account names the balances backing the game economy.
type Account string

const (
	// AccountPelletReserve backs food-pellet emission with real liquidity.
	AccountPelletReserve Account = "pellet_reserve"
	// AccountBankrollObserved tracks on-chain solvency: deposits seen minus
	// confirmed payouts.
	AccountBankrollObserved Account = "bankroll_observed"
	// AccountExitReservedTotal sums payouts promised via signed tickets not
	// yet confirmed on-chain or expired.
	AccountExitReservedTotal Account = "exit_reserved_total"
)

// Balances is a snapshot of account balances in settlement units.
type Balances map[Account]int64

// Reservation is a temporary hold against the bankroll guaranteeing a signed
// exit ticket can be honored. One active reservation per session.
type Reservation struct {
	SessionID string
	Payout    int64
	ExpiresAt time.Time
}

// DepositRecord registers an applied deposit so join flows can find unused
// ones. SpawnSessionID is set once a player spawns off it.
type DepositRecord struct {
	EventID        string
	Wallet         string
	SpawnAmount    int64
	WorldAmount    int64
	AppliedAt      time.Time
	SpawnSessionID string
}

var (
	// ErrConflict means the optimistic commit lost a race; the transaction
	// had no effect and may be retried.
	ErrConflict = errors.New("ledger: optimistic commit conflict")
	// ErrRetriesExhausted means the bounded retry loop gave up; no partial
	// write occurred.
	ErrRetriesExhausted = errors.New("ledger: retries exhausted")
)

// Tx is the view a ledger transaction works against. All reads and writes in
// one Update call commit together or not at all; stores surface ErrConflict
// when another writer got there first.
type Tx interface {
	Balances() (Balances, error)
	SetBalance(acct Account, amount int64) error

	EventSeen(eventID string) (bool, error)
	MarkEventSeen(eventID string) error

	Reservation(sessionID string) (*Reservation, error)
	PutReservation(r Reservation) error
	DeleteReservation(sessionID string) error
	ExpiredReservations(now time.Time) ([]Reservation, error)

	RecordDeposit(d DepositRecord) error

	Cursor(stream string) (string, error)
	SetCursor(stream, cursor string) error
}

// Store is the shared ledger store. Multiple room processes across machines
// mutate it concurrently; Update must be all-or-nothing and serialize
// conflicting writers via optimistic concurrency.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error

	// UnusedDeposit returns the oldest applied deposit for the wallet that
	// no session has spawned from, or nil.
	UnusedDeposit(ctx context.Context, wallet string) (*DepositRecord, error)
	// ClaimDeposit atomically marks a deposit as spawned by the session.
	// Returns false if it was already claimed.
	ClaimDeposit(ctx context.Context, eventID, sessionID string) (bool, error)
}
