package ledger

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"
)

const (
	maxCommitAttempts = 5
	backoffFloor      = 10 * time.Millisecond
	backoffJitter     = 40 * time.Millisecond
)

// Ledger mutates the shared economic accounts through atomic, idempotent
// primitives. Every operation retries optimistic-commit conflicts a bounded
// number of times with a small random backoff; exhaustion surfaces
// ErrRetriesExhausted and guarantees no partial write happened.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) update(ctx context.Context, fn func(Tx) error) error {
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		err := l.store.Update(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == maxCommitAttempts {
			break
		}
		sleep := backoffFloor + time.Duration(rand.Int63n(int64(backoffJitter)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
	return ErrRetriesExhausted
}

// Deposit credits an account unconditionally.
func (l *Ledger) Deposit(ctx context.Context, acct Account, amount int64) error {
	return l.update(ctx, func(tx Tx) error {
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		return tx.SetBalance(acct, b[acct]+amount)
	})
}

// errDenied aborts an update from inside the closure without surfacing an
// error to the caller: the operation returns ok=false instead.
var errDenied = errors.New("ledger: denied")

// Withdraw debits an account if the balance covers it. Returns false with no
// side effects otherwise.
func (l *Ledger) Withdraw(ctx context.Context, acct Account, amount int64) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		if b[acct] < amount {
			return errDenied
		}
		return tx.SetBalance(acct, b[acct]-amount)
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// Transfer moves amount between accounts, all or nothing. Returns false with
// no side effects if the source balance is insufficient.
func (l *Ledger) Transfer(ctx context.Context, from, to Account, amount int64) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		if b[from] < amount {
			return errDenied
		}
		if err := tx.SetBalance(from, b[from]-amount); err != nil {
			return err
		}
		return tx.SetBalance(to, b[to]+amount)
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// ApplyDepositToBalances applies an on-chain deposit exactly once. First
// application credits PelletReserve with the world portion and
// BankrollObserved with the full amount, and registers the deposit for join
// eligibility. Repeat calls with the same id are no-ops returning false.
func (l *Ledger) ApplyDepositToBalances(ctx context.Context, depositID, wallet string, spawnAmount, worldAmount int64) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		seen, err := tx.EventSeen(depositID)
		if err != nil {
			return err
		}
		if seen {
			return errDenied
		}
		if err := tx.MarkEventSeen(depositID); err != nil {
			return err
		}
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		if err := tx.SetBalance(AccountPelletReserve, b[AccountPelletReserve]+worldAmount); err != nil {
			return err
		}
		if err := tx.SetBalance(AccountBankrollObserved, b[AccountBankrollObserved]+spawnAmount+worldAmount); err != nil {
			return err
		}
		return tx.RecordDeposit(DepositRecord{
			EventID:     depositID,
			Wallet:      wallet,
			SpawnAmount: spawnAmount,
			WorldAmount: worldAmount,
			AppliedAt:   time.Now(),
		})
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// ApplyExitToBalances applies a confirmed on-chain exit exactly once:
// BankrollObserved drops by the payout and any reservation held for the
// originating session is released.
func (l *Ledger) ApplyExitToBalances(ctx context.Context, exitID, sessionID string, payout int64) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		seen, err := tx.EventSeen(exitID)
		if err != nil {
			return err
		}
		if seen {
			return errDenied
		}
		if err := tx.MarkEventSeen(exitID); err != nil {
			return err
		}
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		if err := tx.SetBalance(AccountBankrollObserved, b[AccountBankrollObserved]-payout); err != nil {
			return err
		}
		r, err := tx.Reservation(sessionID)
		if err != nil {
			return err
		}
		if r != nil {
			if err := tx.DeleteReservation(sessionID); err != nil {
				return err
			}
			return tx.SetBalance(AccountExitReservedTotal, b[AccountExitReservedTotal]-r.Payout)
		}
		return nil
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// TrySpendPelletReserve atomically checks and decrements the pellet reserve.
// Pellet spawning must be gated on this returning true.
func (l *Ledger) TrySpendPelletReserve(ctx context.Context, amount int64) (bool, error) {
	return l.Withdraw(ctx, AccountPelletReserve, amount)
}

// ReserveExitLiquidity places a hold guaranteeing a future exit ticket. It
// fails if the session already holds a reservation or if granting it would
// promise more than the observed bankroll.
func (l *Ledger) ReserveExitLiquidity(ctx context.Context, sessionID string, payout int64, ttl time.Duration) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		existing, err := tx.Reservation(sessionID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errDenied
		}
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		if b[AccountExitReservedTotal]+payout > b[AccountBankrollObserved] {
			return errDenied
		}
		if err := tx.PutReservation(Reservation{
			SessionID: sessionID,
			Payout:    payout,
			ExpiresAt: time.Now().Add(ttl),
		}); err != nil {
			return err
		}
		return tx.SetBalance(AccountExitReservedTotal, b[AccountExitReservedTotal]+payout)
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// ReleaseExitReservation removes the session's reservation and returns its
// liquidity. A second call for the same session is a no-op returning false.
func (l *Ledger) ReleaseExitReservation(ctx context.Context, sessionID string) (bool, error) {
	err := l.update(ctx, func(tx Tx) error {
		r, err := tx.Reservation(sessionID)
		if err != nil {
			return err
		}
		if r == nil {
			return errDenied
		}
		if err := tx.DeleteReservation(sessionID); err != nil {
			return err
		}
		b, err := tx.Balances()
		if err != nil {
			return err
		}
		return tx.SetBalance(AccountExitReservedTotal, b[AccountExitReservedTotal]-r.Payout)
	})
	if errors.Is(err, errDenied) {
		return false, nil
	}
	return err == nil, err
}

// SweepExpiredReservations releases every reservation past its TTL and
// returns how many it reclaimed. Safe to run concurrently from multiple
// processes: each release is itself idempotent.
func (l *Ledger) SweepExpiredReservations(ctx context.Context, now time.Time) (int, error) {
	var expired []Reservation
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		expired, err = tx.ExpiredReservations(now)
		return err
	})
	if err != nil {
		return 0, err
	}

	released := 0
	for _, r := range expired {
		ok, err := l.ReleaseExitReservation(ctx, r.SessionID)
		if err != nil {
			log.Printf("[LEDGER] Failed to release expired reservation for session %s: %v", r.SessionID, err)
			continue
		}
		if ok {
			released++
		}
	}
	return released, nil
}

// Balances returns a read-only snapshot of the accounts.
func (l *Ledger) Balances(ctx context.Context) (Balances, error) {
	var out Balances
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Balances()
		return err
	})
	return out, err
}

// Cursor returns the durable position for an external event stream.
func (l *Ledger) Cursor(ctx context.Context, stream string) (string, error) {
	var cursor string
	err := l.store.View(ctx, func(tx Tx) error {
		var err error
		cursor, err = tx.Cursor(stream)
		return err
	})
	return cursor, err
}

// SetCursor durably advances a stream cursor.
func (l *Ledger) SetCursor(ctx context.Context, stream, cursor string) error {
	return l.update(ctx, func(tx Tx) error {
		return tx.SetCursor(stream, cursor)
	})
}

// UnusedDeposit finds the oldest applied deposit for a wallet that nobody has
// spawned from yet.
func (l *Ledger) UnusedDeposit(ctx context.Context, wallet string) (*DepositRecord, error) {
	return l.store.UnusedDeposit(ctx, wallet)
}

// ClaimDeposit marks a deposit as consumed by a session spawn.
func (l *Ledger) ClaimDeposit(ctx context.Context, depositID, sessionID string) (bool, error) {
	return l.store.ClaimDeposit(ctx, depositID, sessionID)
}
