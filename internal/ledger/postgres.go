package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/massarena/backend/internal/models"
)

// PostgresStore is the shared ledger store. Several room processes on
// different machines write to the same rows, so every balance update is
// version-checked: a lost race surfaces as ErrConflict and the whole
// transaction rolls back with no partial write.
type PostgresStore struct {
	db       *sqlx.DB
	serverID string
}

func NewPostgresStore(db *sqlx.DB, serverID string) (*PostgresStore, error) {
	s := &PostgresStore{db: db, serverID: serverID}

	for _, acct := range []Account{AccountPelletReserve, AccountBankrollObserved, AccountExitReservedTotal} {
		_, err := db.Exec(`INSERT INTO ledger_accounts (server_id, account, balance, version, updated_at)
			VALUES ($1, $2, 0, 0, NOW()) ON CONFLICT (server_id, account) DO NOTHING`,
			serverID, string(acct))
		if err != nil {
			return nil, fmt.Errorf("ensure account %s: %w", acct, err)
		}
	}
	return s, nil
}

func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	ptx := &pgTx{tx: tx, serverID: s.serverID}
	if err := fn(ptx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(&pgTx{tx: tx, serverID: s.serverID})
}

func (s *PostgresStore) UnusedDeposit(ctx context.Context, wallet string) (*DepositRecord, error) {
	var row models.Deposit
	err := s.db.GetContext(ctx, &row, `SELECT server_id, event_id, wallet, spawn_amount, world_amount, applied_at, spawn_session_id
		FROM deposits WHERE server_id=$1 AND wallet=$2 AND spawn_session_id IS NULL
		ORDER BY applied_at, event_id LIMIT 1`, s.serverID, wallet)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &DepositRecord{
		EventID:     row.EventID,
		Wallet:      row.Wallet,
		SpawnAmount: row.SpawnAmount,
		WorldAmount: row.WorldAmount,
		AppliedAt:   row.AppliedAt,
	}, nil
}

func (s *PostgresStore) ClaimDeposit(ctx context.Context, eventID, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE deposits SET spawn_session_id=$1
		WHERE server_id=$2 AND event_id=$3 AND spawn_session_id IS NULL`,
		sessionID, s.serverID, eventID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// pgTx implements Tx over one database transaction. Balance versions are
// captured on first read; SetBalance commits only if the version is still
// current.
type pgTx struct {
	tx       *sqlx.Tx
	serverID string
	versions map[Account]int64
	cached   Balances
}

func (t *pgTx) loadBalances() error {
	if t.cached != nil {
		return nil
	}
	var rows []models.LedgerAccount
	err := t.tx.Select(&rows, `SELECT server_id, account, balance, version, updated_at
		FROM ledger_accounts WHERE server_id=$1`, t.serverID)
	if err != nil {
		return err
	}
	t.cached = make(Balances, len(rows))
	t.versions = make(map[Account]int64, len(rows))
	for _, r := range rows {
		t.cached[Account(r.Account)] = r.Balance
		t.versions[Account(r.Account)] = r.Version
	}
	return nil
}

func (t *pgTx) Balances() (Balances, error) {
	if err := t.loadBalances(); err != nil {
		return nil, err
	}
	out := make(Balances, len(t.cached))
	for k, v := range t.cached {
		out[k] = v
	}
	return out, nil
}

func (t *pgTx) SetBalance(acct Account, amount int64) error {
	if err := t.loadBalances(); err != nil {
		return err
	}
	version, ok := t.versions[acct]
	if !ok {
		return fmt.Errorf("unknown account %q", acct)
	}
	res, err := t.tx.Exec(`UPDATE ledger_accounts SET balance=$1, version=version+1, updated_at=NOW()
		WHERE server_id=$2 AND account=$3 AND version=$4`,
		amount, t.serverID, string(acct), version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	t.cached[acct] = amount
	t.versions[acct] = version + 1
	return nil
}

func (t *pgTx) EventSeen(eventID string) (bool, error) {
	var seen bool
	err := t.tx.Get(&seen, `SELECT EXISTS (SELECT 1 FROM ledger_applied_events WHERE server_id=$1 AND event_id=$2)`,
		t.serverID, eventID)
	return seen, err
}

func (t *pgTx) MarkEventSeen(eventID string) error {
	res, err := t.tx.Exec(`INSERT INTO ledger_applied_events (server_id, event_id, applied_at)
		VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, t.serverID, eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		// Another process applied this event between our read and write.
		return ErrConflict
	}
	return nil
}

func (t *pgTx) Reservation(sessionID string) (*Reservation, error) {
	var row models.ExitReservation
	err := t.tx.Get(&row, `SELECT server_id, session_id, payout, expires_at, created_at
		FROM exit_reservations WHERE server_id=$1 AND session_id=$2`, t.serverID, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Reservation{SessionID: row.SessionID, Payout: row.Payout, ExpiresAt: row.ExpiresAt}, nil
}

func (t *pgTx) PutReservation(r Reservation) error {
	res, err := t.tx.Exec(`INSERT INTO exit_reservations (server_id, session_id, payout, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW()) ON CONFLICT DO NOTHING`,
		t.serverID, r.SessionID, r.Payout, r.ExpiresAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) DeleteReservation(sessionID string) error {
	_, err := t.tx.Exec(`DELETE FROM exit_reservations WHERE server_id=$1 AND session_id=$2`,
		t.serverID, sessionID)
	return err
}

func (t *pgTx) ExpiredReservations(now time.Time) ([]Reservation, error) {
	var rows []models.ExitReservation
	err := t.tx.Select(&rows, `SELECT server_id, session_id, payout, expires_at, created_at
		FROM exit_reservations WHERE server_id=$1 AND expires_at < $2 ORDER BY session_id`,
		t.serverID, now)
	if err != nil {
		return nil, err
	}
	out := make([]Reservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, Reservation{SessionID: r.SessionID, Payout: r.Payout, ExpiresAt: r.ExpiresAt})
	}
	return out, nil
}

func (t *pgTx) RecordDeposit(d DepositRecord) error {
	_, err := t.tx.Exec(`INSERT INTO deposits (server_id, event_id, wallet, spawn_amount, world_amount, applied_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) ON CONFLICT DO NOTHING`,
		t.serverID, d.EventID, d.Wallet, d.SpawnAmount, d.WorldAmount)
	return err
}

func (t *pgTx) Cursor(stream string) (string, error) {
	var cursor string
	err := t.tx.Get(&cursor, `SELECT cursor FROM feed_cursors WHERE server_id=$1 AND stream=$2`,
		t.serverID, stream)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, err
}

func (t *pgTx) SetCursor(stream, cursor string) error {
	_, err := t.tx.Exec(`INSERT INTO feed_cursors (server_id, stream, cursor, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (server_id, stream) DO UPDATE SET cursor=EXCLUDED.cursor, updated_at=NOW()`,
		t.serverID, stream, cursor)
	return err
}
