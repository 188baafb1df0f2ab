package room

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/redis/go-redis/v9"

	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/game"
	"github.com/massarena/backend/internal/ledger"
	"github.com/massarena/backend/internal/ticket"
	"github.com/massarena/backend/internal/ws"
)

const testWallet = "0x2222222222222222222222222222222222222222"

func newTestRoom(t *testing.T) (*Room, *ledger.Ledger) {
	t.Helper()
	cfg := &config.Config{
		ServerID:              "server-test",
		ContractAddress:       "0x1111111111111111111111111111111111111111",
		ExitTicketTTLSecs:     600,
		ReservationMarginSecs: 120,
		DisconnectGraceSecs:   60,
		Room:                  config.DefaultRoomConfig(),
	}

	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	issuer, err := ticket.NewIssuer(cfg.ContractAddress, cfg.ServerID, key, nil, nil)
	if err != nil {
		t.Fatalf("issuer init failed: %v", err)
	}

	l := ledger.New(ledger.NewMemoryStore())
	return New(cfg, l, issuer, ws.NewHub(), nil), l
}

func TestJoinWithoutDepositRequiresDeposit(t *testing.T) {
	rm, _ := newTestRoom(t)

	d, err := rm.Join(context.Background(), testWallet, "alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if d.Decision != "deposit_required" {
		t.Errorf("decision = %q, want deposit_required", d.Decision)
	}
}

func TestJoinSpawnAndDepositClaim(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)
	l.ApplyDepositToBalances(ctx, "dep-1", testWallet, 10, 5)

	d, err := rm.Join(ctx, testWallet, "alice")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if d.Decision != "spawn" || d.DepositID != "dep-1" || d.SpawnAmount != 10 {
		t.Fatalf("unexpected decision: %+v", d)
	}

	ok, err := rm.Spawn(ctx, d.SessionID, testWallet, "alice", d.DepositID, d.SpawnAmount)
	if err != nil || !ok {
		t.Fatalf("spawn failed: ok=%v err=%v", ok, err)
	}
	if rm.PlayerCount() != 1 {
		t.Errorf("player count = %d, want 1", rm.PlayerCount())
	}

	// The deposit is single-use.
	ok, _ = rm.Spawn(ctx, "another-session", testWallet, "alice", d.DepositID, d.SpawnAmount)
	if ok {
		t.Error("same deposit spawned twice")
	}
}

func TestJoinReconnectRekeysSession(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)
	l.ApplyDepositToBalances(ctx, "dep-1", testWallet, 10, 5)

	d, _ := rm.Join(ctx, testWallet, "alice")
	rm.Spawn(ctx, d.SessionID, testWallet, "alice", d.DepositID, d.SpawnAmount)

	re, err := rm.Join(ctx, testWallet, "alice")
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if re.Decision != "reconnect" {
		t.Fatalf("decision = %q, want reconnect", re.Decision)
	}
	if re.SessionID == d.SessionID {
		t.Error("reconnect did not issue a fresh session id")
	}
	if rm.PlayerCount() != 1 {
		t.Errorf("player count = %d after reconnect, want 1", rm.PlayerCount())
	}
}

func TestExitIssuesTicketAndRemovesPlayer(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)
	// spawn_amount 10 at 10 mass/unit gives a 100 mass cell, payout 10.
	l.ApplyDepositToBalances(ctx, "dep-1", testWallet, 10, 5)

	d, _ := rm.Join(ctx, testWallet, "alice")
	rm.Spawn(ctx, d.SessionID, testWallet, "alice", d.DepositID, d.SpawnAmount)

	rm.HandleExit(d.SessionID)

	if rm.PlayerCount() != 0 {
		t.Errorf("player still in world after exit: count=%d", rm.PlayerCount())
	}
	b, _ := l.Balances(ctx)
	if b[ledger.AccountExitReservedTotal] != 10 {
		t.Errorf("ExitReservedTotal = %d, want 10", b[ledger.AccountExitReservedTotal])
	}
}

func TestExitReservationOutlivesTicketDeadline(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)
	rm.cfg.ReservationMarginSecs = 0
	l.ApplyDepositToBalances(ctx, "dep-1", testWallet, 10, 5)

	d, _ := rm.Join(ctx, testWallet, "alice")
	rm.Spawn(ctx, d.SessionID, testWallet, "alice", d.DepositID, d.SpawnAmount)
	rm.HandleExit(d.SessionID)

	// The ticket is redeemable for another ExitTicketTTLSecs, so the sweep
	// must not free the liquidity backing it, even with a zero margin.
	released, err := l.SweepExpiredReservations(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if released != 0 {
		t.Errorf("sweep released %d reservations backing live tickets", released)
	}
	b, _ := l.Balances(ctx)
	if b[ledger.AccountExitReservedTotal] != 10 {
		t.Errorf("ExitReservedTotal = %d, want 10", b[ledger.AccountExitReservedTotal])
	}

	// Past the deadline the reservation becomes sweepable.
	ttl := time.Duration(rm.cfg.ExitTicketTTLSecs) * time.Second
	released, err = l.SweepExpiredReservations(ctx, time.Now().Add(ttl+time.Minute))
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if released != 1 {
		t.Errorf("expired reservation not swept: released=%d", released)
	}
}

func TestExitDeniedWhenLiquidityExhausted(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)
	l.ApplyDepositToBalances(ctx, "dep-1", testWallet, 10, 0)

	d, _ := rm.Join(ctx, testWallet, "alice")
	rm.Spawn(ctx, d.SessionID, testWallet, "alice", d.DepositID, d.SpawnAmount)

	// Another process promised most of the bankroll already.
	l.ReserveExitLiquidity(ctx, "elsewhere", 5, 0)

	rm.HandleExit(d.SessionID)

	if rm.PlayerCount() != 1 {
		t.Errorf("player removed despite denied exit: count=%d", rm.PlayerCount())
	}
	b, _ := l.Balances(ctx)
	if b[ledger.AccountExitReservedTotal] != 5 {
		t.Errorf("ExitReservedTotal = %d, want 5", b[ledger.AccountExitReservedTotal])
	}
}

func TestFoodTopUpGatedOnPelletReserve(t *testing.T) {
	ctx := context.Background()
	rm, l := newTestRoom(t)

	// Empty reserve: no pellets appear.
	rm.topUpFood(ctx)
	rm.mu.Lock()
	count := rm.world.FoodCount()
	rm.mu.Unlock()
	if count != 0 {
		t.Fatalf("pellets spawned with empty reserve: %d", count)
	}

	// Fund enough for the full target batch.
	need := (int64(rm.cfg.Room.FoodTarget)*rm.cfg.Room.FoodMass + rm.cfg.Room.MassPerUnit - 1) / rm.cfg.Room.MassPerUnit
	l.Deposit(ctx, ledger.AccountPelletReserve, need)

	rm.topUpFood(ctx)
	rm.mu.Lock()
	count = rm.world.FoodCount()
	rm.mu.Unlock()
	if count != rm.cfg.Room.FoodTarget {
		t.Errorf("food count = %d, want %d", count, rm.cfg.Room.FoodTarget)
	}

	b, _ := l.Balances(ctx)
	if b[ledger.AccountPelletReserve] != 0 {
		t.Errorf("reserve not fully spent: %d", b[ledger.AccountPelletReserve])
	}
}

func TestEventQueueDropsWhenFull(t *testing.T) {
	rm, _ := newTestRoom(t)
	// Client construction does not dial; queueEvents only enqueues.
	rm.rdb = redis.NewClient(&redis.Options{Addr: "localhost:0"})

	batch := []game.Event{{Type: game.EventMassDecayed, SessionID: "s1", Amount: 2}}
	for i := 0; i < cap(rm.events)+5; i++ {
		rm.queueEvents(batch)
	}
	if got := len(rm.events); got != cap(rm.events) {
		t.Errorf("queued batches = %d, want %d", got, cap(rm.events))
	}
}
