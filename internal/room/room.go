package room

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/massarena/backend/internal/config"
	"github.com/massarena/backend/internal/game"
	"github.com/massarena/backend/internal/ledger"
	"github.com/massarena/backend/internal/ticket"
	"github.com/massarena/backend/internal/ws"
)

const (
	eventsChannel    = "game_events"
	sessionKeyPrefix = "active_session:"
)

// JoinDecision tells a joining wallet how it may enter the room.
type JoinDecision struct {
	Decision    string `json:"decision"` // reconnect | spawn | deposit_required
	SessionID   string `json:"session_id,omitempty"`
	DepositID   string `json:"deposit_id,omitempty"`
	SpawnAmount int64  `json:"spawn_amount,omitempty"`
}

// Room hosts one world: it owns the tick loop, join and exit flows, and the
// fan-out of state snapshots. All world access goes through its mutex; the
// tick loop and connection handlers never touch the world concurrently.
type Room struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	issuer *ticket.Issuer
	hub    *ws.Hub
	rdb    *redis.Client
	events chan []game.Event

	mu           sync.Mutex
	world        *game.World
	wallets      map[string]string    // wallet -> active session id
	sessions     map[string]string    // session id -> wallet
	disconnected map[string]time.Time // session id -> when the socket dropped
}

func New(cfg *config.Config, l *ledger.Ledger, issuer *ticket.Issuer, hub *ws.Hub, rdb *redis.Client) *Room {
	r := &Room{
		cfg:          cfg,
		ledger:       l,
		issuer:       issuer,
		hub:          hub,
		rdb:          rdb,
		events:       make(chan []game.Event, 64),
		world:        game.NewWorld(cfg.Room, time.Now().UnixNano()),
		wallets:      make(map[string]string),
		sessions:     make(map[string]string),
		disconnected: make(map[string]time.Time),
	}
	return r
}

// Run drives the world at the configured tick rate until ctx is cancelled.
// Redis publishes and ledger-funded maintenance run on their own goroutines
// so a slow broker or store never stalls the tick cadence.
func (r *Room) Run(ctx context.Context) {
	interval := time.Second / time.Duration(r.cfg.Room.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go r.publishLoop(ctx)
	go r.maintenanceLoop(ctx, interval*time.Duration(r.cfg.Room.SlowTickEvery))

	log.Printf("[ROOM] Tick loop started (%d ticks/sec, world %.0fx%.0f)",
		r.cfg.Room.TickRate, r.cfg.Room.WorldWidth, r.cfg.Room.WorldHeight)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[ROOM] Tick loop stopped")
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Room) tick() {
	r.mu.Lock()
	events := r.world.Step()
	snapshot := r.world.Snapshot()
	tickNo := r.world.Tick()

	var dead []string
	for _, ev := range events {
		if ev.Type == game.EventPlayerDied {
			dead = append(dead, ev.SessionID)
		}
	}
	for _, sid := range dead {
		r.world.RemovePlayer(sid)
		r.dropSessionLocked(sid)
	}
	r.mu.Unlock()

	r.hub.Broadcast(map[string]interface{}{
		"type":  "state",
		"tick":  tickNo,
		"nodes": snapshot,
	})
	for _, sid := range dead {
		r.hub.SendToSession(sid, map[string]interface{}{"type": "died"})
	}

	r.queueEvents(events)
}

// queueEvents hands a tick's events to the publish goroutine. The pub/sub
// feed is advisory, so when the queue is backed up the batch is dropped
// rather than blocking the tick.
func (r *Room) queueEvents(events []game.Event) {
	if r.rdb == nil || len(events) == 0 {
		return
	}
	select {
	case r.events <- events:
	default:
		log.Printf("[ROOM] Event queue full, dropping %d events", len(events))
	}
}

func (r *Room) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-r.events:
			r.publishEvents(ctx, events)
		}
	}
}

// maintenanceLoop runs the ledger-backed housekeeping at the slow-tick
// cadence: funded food and virus top-ups plus the disconnect sweep.
func (r *Room) maintenanceLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.maintain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.maintain(ctx)
		}
	}
}

func (r *Room) maintain(ctx context.Context) {
	r.topUpFood(ctx)
	r.topUpViruses(ctx)
	r.sweepDisconnected(ctx)
}

func (r *Room) publishEvents(ctx context.Context, events []game.Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := r.rdb.Publish(ctx, eventsChannel, data).Err(); err != nil {
			log.Printf("[ROOM] Failed to publish event: %v", err)
			return
		}
	}
}

// topUpFood spawns pellets toward the target count, but only mass the pellet
// reserve can pay for. If the full batch is unaffordable it halves the ask
// until something fits or nothing does.
func (r *Room) topUpFood(ctx context.Context) {
	r.mu.Lock()
	missing := r.cfg.Room.FoodTarget - r.world.FoodCount()
	r.mu.Unlock()
	if missing <= 0 {
		return
	}

	for missing > 0 {
		cost := ceilDiv(int64(missing)*r.cfg.Room.FoodMass, r.cfg.Room.MassPerUnit)
		if cost == 0 {
			cost = 1
		}
		ok, err := r.ledger.TrySpendPelletReserve(ctx, cost)
		if err != nil {
			log.Printf("[ROOM] Pellet reserve check failed: %v", err)
			return
		}
		if ok {
			r.mu.Lock()
			r.world.SpawnFoodBatch(missing)
			r.mu.Unlock()
			return
		}
		missing /= 2
	}
}

// topUpViruses keeps the hazard population at the configured minimum. Virus
// mass enters player mass on a pop, so each spawn is paid for from the pellet
// reserve just like food. A failed placement refunds the spend.
func (r *Room) topUpViruses(ctx context.Context) {
	cost := ceilDiv(r.cfg.Room.VirusMass, r.cfg.Room.MassPerUnit)

	for {
		r.mu.Lock()
		missing := r.cfg.Room.VirusMin - r.world.VirusCount()
		r.mu.Unlock()
		if missing <= 0 {
			return
		}

		ok, err := r.ledger.TrySpendPelletReserve(ctx, cost)
		if err != nil {
			log.Printf("[ROOM] Pellet reserve check failed: %v", err)
			return
		}
		if !ok {
			return
		}

		r.mu.Lock()
		spawned := r.world.SpawnVirus()
		r.mu.Unlock()
		if !spawned {
			if err := r.ledger.Deposit(ctx, ledger.AccountPelletReserve, cost); err != nil {
				log.Printf("[ROOM] Failed to refund virus spawn: %v", err)
			}
			return
		}
	}
}

func (r *Room) sessionKey(wallet string) string {
	return sessionKeyPrefix + r.cfg.ServerID + ":" + wallet
}

// mirrorSession keeps a best-effort wallet to session mapping in Redis so
// operators can look up live sessions without asking the room. The in-memory
// maps stay authoritative for the reconnect decision.
func (r *Room) mirrorSession(wallet, sessionID string) {
	if r.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.rdb.Set(ctx, r.sessionKey(wallet), sessionID, 24*time.Hour).Err(); err != nil {
			log.Printf("[ROOM] Failed to mirror session for wallet %s: %v", wallet, err)
		}
	}()
}

func (r *Room) unmirrorSession(wallet string) {
	if r.rdb == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.rdb.Del(ctx, r.sessionKey(wallet)).Err(); err != nil {
			log.Printf("[ROOM] Failed to clear session mirror for wallet %s: %v", wallet, err)
		}
	}()
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Join decides how a wallet enters the room. An alive session for the wallet
// means reconnect (the session is rekeyed so the old grant goes stale);
// otherwise an unused deposit lets the wallet spawn; otherwise it must
// deposit first.
func (r *Room) Join(ctx context.Context, wallet, displayName string) (*JoinDecision, error) {
	r.mu.Lock()
	oldSession, active := r.wallets[wallet]
	r.mu.Unlock()

	if active {
		newSession := uuid.New().String()
		r.mu.Lock()
		if r.world.RekeySession(oldSession, newSession) {
			r.wallets[wallet] = newSession
			delete(r.sessions, oldSession)
			r.sessions[newSession] = wallet
			delete(r.disconnected, oldSession)
			r.mu.Unlock()
			r.mirrorSession(wallet, newSession)
			log.Printf("[ROOM] Wallet %s reconnecting: session %s -> %s", wallet, oldSession, newSession)
			return &JoinDecision{Decision: "reconnect", SessionID: newSession}, nil
		}
		// Player vanished between the check and the rekey; fall through.
		delete(r.wallets, wallet)
		delete(r.sessions, oldSession)
		r.mu.Unlock()
	}

	dep, err := r.ledger.UnusedDeposit(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if dep == nil {
		return &JoinDecision{Decision: "deposit_required"}, nil
	}
	return &JoinDecision{
		Decision:    "spawn",
		SessionID:   uuid.New().String(),
		DepositID:   dep.EventID,
		SpawnAmount: dep.SpawnAmount,
	}, nil
}

// Spawn claims the deposit and puts the player's starting cell in the world.
// Claiming is atomic, so two sessions racing for one deposit cannot both
// spawn from it.
func (r *Room) Spawn(ctx context.Context, sessionID, wallet, displayName, depositID string, spawnAmount int64) (bool, error) {
	ok, err := r.ledger.ClaimDeposit(ctx, depositID, sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	mass := ticket.PayoutToMass(spawnAmount, r.cfg.Room.MassPerUnit)

	r.mu.Lock()
	r.world.AddPlayer(sessionID, wallet, displayName, mass)
	r.wallets[wallet] = sessionID
	r.sessions[sessionID] = wallet
	r.mu.Unlock()

	r.mirrorSession(wallet, sessionID)
	log.Printf("[ROOM] Session %s spawned for wallet %s with mass %d (deposit %s)", sessionID, wallet, mass, depositID)
	return true, nil
}

// HandleInput buffers a player's input for the next tick.
func (r *Room) HandleInput(sessionID string, in game.Input) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.world.SetInput(sessionID, in)
}

// HandleExit runs the voluntary cash-out: reserve liquidity for the player's
// current mass, sign a ticket against it, then remove the player. If the
// ticket cannot be issued the reservation is released so no liquidity leaks.
func (r *Room) HandleExit(sessionID string) {
	ctx := context.Background()

	r.mu.Lock()
	wallet, ok := r.sessions[sessionID]
	if !ok || !r.world.HasPlayer(sessionID) {
		r.mu.Unlock()
		return
	}
	mass := r.world.TotalMass(sessionID)
	r.mu.Unlock()

	payout := ticket.MassToPayout(mass, r.cfg.Room.MassPerUnit)
	if payout <= 0 {
		log.Printf("[ROOM] Session %s exit with mass %d below one settlement unit, removing without ticket", sessionID, mass)
		r.removeSession(sessionID)
		r.hub.SendToSession(sessionID, map[string]interface{}{"type": "exit_denied", "reason": "mass_too_low"})
		return
	}

	deadline := time.Now().Add(time.Duration(r.cfg.ExitTicketTTLSecs) * time.Second)

	// The reservation must outlive the ticket deadline: the sweep may only
	// reclaim liquidity once the ticket can no longer be redeemed on-chain.
	// The margin absorbs confirmation lag around the deadline.
	ttl := time.Until(deadline) + time.Duration(r.cfg.ReservationMarginSecs)*time.Second
	reserved, err := r.ledger.ReserveExitLiquidity(ctx, sessionID, payout, ttl)
	if err != nil {
		log.Printf("[ROOM] Exit reservation errored for session %s: %v", sessionID, err)
		r.hub.SendToSession(sessionID, map[string]interface{}{"type": "exit_denied", "reason": "ledger_unavailable"})
		return
	}
	if !reserved {
		log.Printf("[ROOM] Exit reservation denied for session %s (payout=%d)", sessionID, payout)
		r.hub.SendToSession(sessionID, map[string]interface{}{"type": "exit_denied", "reason": "insufficient_liquidity"})
		return
	}

	t, err := r.issuer.Create(ctx, sessionID, wallet, payout, deadline)
	if err != nil {
		log.Printf("[ROOM] Ticket issue failed for session %s, releasing reservation: %v", sessionID, err)
		if _, rerr := r.ledger.ReleaseExitReservation(ctx, sessionID); rerr != nil {
			log.Printf("[ROOM] Failed to release reservation for session %s: %v", sessionID, rerr)
		}
		r.hub.SendToSession(sessionID, map[string]interface{}{"type": "exit_denied", "reason": "ticket_failed"})
		return
	}

	r.removeSession(sessionID)
	r.hub.SendToSession(sessionID, map[string]interface{}{"type": "exit_ticket", "ticket": t})
	log.Printf("[ROOM] Session %s exited with payout %d", sessionID, payout)
}

// HandleDisconnect starts the grace window. Cells stay in the world so the
// player can reconnect; the sweep removes them if the window runs out.
func (r *Room) HandleDisconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.world.HasPlayer(sessionID) {
		r.disconnected[sessionID] = time.Now()
		log.Printf("[ROOM] Session %s disconnected, grace window %ds", sessionID, r.cfg.DisconnectGraceSecs)
	}
}

// HandleConnect clears any pending grace window after a successful socket
// attach.
func (r *Room) HandleConnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disconnected, sessionID)
}

// sweepDisconnected force-exits sessions whose grace window ran out. The
// forced exit still tries to issue a ticket so the mass is not confiscated.
func (r *Room) sweepDisconnected(ctx context.Context) {
	grace := time.Duration(r.cfg.DisconnectGraceSecs) * time.Second

	r.mu.Lock()
	var expired []string
	for sid, at := range r.disconnected {
		if time.Since(at) > grace {
			expired = append(expired, sid)
		}
	}
	r.mu.Unlock()

	for _, sid := range expired {
		log.Printf("[ROOM] Session %s grace window expired, forcing exit", sid)
		r.HandleExit(sid)

		r.mu.Lock()
		if r.world.HasPlayer(sid) {
			// Exit denied, usually a liquidity squeeze. Keep the cells
			// and retry on the next sweep rather than confiscate mass.
			r.disconnected[sid] = time.Now()
		}
		r.mu.Unlock()
	}
}

func (r *Room) removeSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.world.RemovePlayer(sessionID)
	r.dropSessionLocked(sessionID)
}

func (r *Room) dropSessionLocked(sessionID string) {
	if wallet, ok := r.sessions[sessionID]; ok {
		if r.wallets[wallet] == sessionID {
			delete(r.wallets, wallet)
			r.unmirrorSession(wallet)
		}
		delete(r.sessions, sessionID)
	}
	delete(r.disconnected, sessionID)
}

// PlayerCount reports alive players, for health output.
func (r *Room) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.world.PlayerCount()
}
