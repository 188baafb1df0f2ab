package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process ledger store. It backs mock mode (no
// DATABASE_URL configured) and the package tests. A single mutex makes every
// Update trivially all-or-nothing; conflicts cannot occur.
type MemoryStore struct {
	mu           sync.Mutex
	balances     Balances
	seen         map[string]bool
	reservations map[string]Reservation
	deposits     map[string]*DepositRecord
	cursors      map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: Balances{
			AccountPelletReserve:     0,
			AccountBankrollObserved:  0,
			AccountExitReservedTotal: 0,
		},
		seen:         make(map[string]bool),
		reservations: make(map[string]Reservation),
		deposits:     make(map[string]*DepositRecord),
		cursors:      make(map[string]string),
	}
}

// memTx stages writes and applies them only if fn succeeds.
type memTx struct {
	s        *MemoryStore
	balances Balances
	staged   []func()
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, balances: make(Balances, len(s.balances))}
	for k, v := range s.balances {
		tx.balances[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	for _, apply := range tx.staged {
		apply()
	}
	for k, v := range tx.balances {
		s.balances[k] = v
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, balances: make(Balances, len(s.balances))}
	for k, v := range s.balances {
		tx.balances[k] = v
	}
	return fn(tx)
}

func (tx *memTx) Balances() (Balances, error) {
	out := make(Balances, len(tx.balances))
	for k, v := range tx.balances {
		out[k] = v
	}
	return out, nil
}

func (tx *memTx) SetBalance(acct Account, amount int64) error {
	tx.balances[acct] = amount
	return nil
}

func (tx *memTx) EventSeen(eventID string) (bool, error) {
	return tx.s.seen[eventID], nil
}

func (tx *memTx) MarkEventSeen(eventID string) error {
	tx.staged = append(tx.staged, func() { tx.s.seen[eventID] = true })
	return nil
}

func (tx *memTx) Reservation(sessionID string) (*Reservation, error) {
	if r, ok := tx.s.reservations[sessionID]; ok {
		out := r
		return &out, nil
	}
	return nil, nil
}

func (tx *memTx) PutReservation(r Reservation) error {
	tx.staged = append(tx.staged, func() { tx.s.reservations[r.SessionID] = r })
	return nil
}

func (tx *memTx) DeleteReservation(sessionID string) error {
	tx.staged = append(tx.staged, func() { delete(tx.s.reservations, sessionID) })
	return nil
}

func (tx *memTx) ExpiredReservations(now time.Time) ([]Reservation, error) {
	var out []Reservation
	for _, r := range tx.s.reservations {
		if now.After(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

func (tx *memTx) RecordDeposit(d DepositRecord) error {
	tx.staged = append(tx.staged, func() {
		rec := d
		tx.s.deposits[d.EventID] = &rec
	})
	return nil
}

func (tx *memTx) Cursor(stream string) (string, error) {
	return tx.s.cursors[stream], nil
}

func (tx *memTx) SetCursor(stream, cursor string) error {
	tx.staged = append(tx.staged, func() { tx.s.cursors[stream] = cursor })
	return nil
}

func (s *MemoryStore) UnusedDeposit(ctx context.Context, wallet string) (*DepositRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *DepositRecord
	for _, d := range s.deposits {
		if d.Wallet != wallet || d.SpawnSessionID != "" {
			continue
		}
		if best == nil || d.AppliedAt.Before(best.AppliedAt) ||
			(d.AppliedAt.Equal(best.AppliedAt) && d.EventID < best.EventID) {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (s *MemoryStore) ClaimDeposit(ctx context.Context, eventID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deposits[eventID]
	if !ok || d.SpawnSessionID != "" {
		return false, nil
	}
	d.SpawnSessionID = sessionID
	return true, nil
}
