package ledger

import (
	"context"
	"log"
	"time"

	"github.com/massarena/backend/internal/indexer"
)

const (
	depositStream = "deposits"
	exitStream    = "exits"
)

// EventFeed is the slice of the chain indexer the reconciler consumes.
type EventFeed interface {
	Deposits(ctx context.Context, cursor string) ([]indexer.DepositEvent, string, error)
	Exits(ctx context.Context, cursor string) ([]indexer.ExitEvent, string, error)
}

// TicketCleaner drops the hot copy of a ticket once its redemption is
// confirmed on-chain.
type TicketCleaner interface {
	Delete(ctx context.Context, sessionID string) error
}

// Reconciler polls the indexer feeds and folds confirmed on-chain events into
// the ledger. Applying is idempotent and cursors advance only after a page
// fully applies, so crashes and re-deliveries are harmless.
type Reconciler struct {
	ledger  *Ledger
	feed    EventFeed
	tickets TicketCleaner
}

func NewReconciler(l *Ledger, feed EventFeed, tickets TicketCleaner) *Reconciler {
	return &Reconciler{ledger: l, feed: feed, tickets: tickets}
}

// Start runs the reconcile loop until ctx is cancelled. Runs once immediately
// on startup so a restarted server catches up before serving joins.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[RECONCILE] Starting feed reconciler (poll every %v)", interval)

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[RECONCILE] Reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce drains both feeds to their current heads and sweeps expired
// reservations. Errors are logged and retried on the next pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	if err := r.drainDeposits(ctx); err != nil {
		log.Printf("[RECONCILE] Deposit feed pass failed: %v", err)
	}
	if err := r.drainExits(ctx); err != nil {
		log.Printf("[RECONCILE] Exit feed pass failed: %v", err)
	}

	released, err := r.ledger.SweepExpiredReservations(ctx, time.Now())
	if err != nil {
		log.Printf("[RECONCILE] Reservation sweep failed: %v", err)
	} else if released > 0 {
		log.Printf("[RECONCILE] Released %d expired exit reservation(s)", released)
	}
}

func (r *Reconciler) drainDeposits(ctx context.Context) error {
	for {
		cursor, err := r.ledger.Cursor(ctx, depositStream)
		if err != nil {
			return err
		}
		events, next, err := r.feed.Deposits(ctx, cursor)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		applied := 0
		for _, ev := range events {
			ok, err := r.ledger.ApplyDepositToBalances(ctx, ev.ID, ev.Player, ev.SpawnAmount, ev.WorldAmount)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
		}
		if applied > 0 {
			log.Printf("[RECONCILE] Applied %d deposit event(s)", applied)
		}

		// Only after every event in the page applied. A crash before this
		// re-delivers the page; the seen-set makes that a no-op.
		if err := r.ledger.SetCursor(ctx, depositStream, next); err != nil {
			return err
		}
	}
}

func (r *Reconciler) drainExits(ctx context.Context) error {
	for {
		cursor, err := r.ledger.Cursor(ctx, exitStream)
		if err != nil {
			return err
		}
		events, next, err := r.feed.Exits(ctx, cursor)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		applied := 0
		for _, ev := range events {
			ok, err := r.ledger.ApplyExitToBalances(ctx, ev.ID, ev.SessionID, ev.Payout)
			if err != nil {
				return err
			}
			if ok {
				applied++
			}
			if r.tickets != nil {
				if err := r.tickets.Delete(ctx, ev.SessionID); err != nil {
					log.Printf("[RECONCILE] Failed to drop redeemed ticket for session %s: %v", ev.SessionID, err)
				}
			}
		}
		if applied > 0 {
			log.Printf("[RECONCILE] Applied %d exit event(s)", applied)
		}

		if err := r.ledger.SetCursor(ctx, exitStream, next); err != nil {
			return err
		}
	}
}
