package game

import (
	"math/rand"
	"sort"

	"github.com/massarena/backend/internal/config"
)

var cellPalette = []string{
	"#ff5252", "#ffb142", "#fffa65", "#32ff7e", "#18dcff",
	"#7d5fff", "#cd84f1", "#ff4d94", "#3ae374", "#67e6dc",
}

// World owns every entity in one game room. It is single-threaded by
// contract: the room host calls all methods from its tick loop goroutine.
type World struct {
	cfg     config.RoomConfig
	nodes   map[NodeID]*WorldNode
	players map[string]*Player
	nextID  NodeID
	tick    uint64
	rng     *rand.Rand
	events  []Event
}

// NewWorld creates an empty room world. The seed only influences spawn
// placement, colors and virus pop angles, never combat resolution.
func NewWorld(cfg config.RoomConfig, seed int64) *World {
	return &World{
		cfg:     cfg,
		nodes:   make(map[NodeID]*WorldNode),
		players: make(map[string]*Player),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (w *World) allocID() NodeID {
	w.nextID++
	return w.nextID
}

func (w *World) addNode(n *WorldNode) *WorldNode {
	n.ID = w.allocID()
	w.nodes[n.ID] = n
	return n
}

func (w *World) removeNode(id NodeID) {
	n, ok := w.nodes[id]
	if !ok {
		return
	}
	if n.Kind == KindPlayerCell {
		if p, ok := w.players[n.Owner]; ok {
			for i, cid := range p.CellIDs {
				if cid == id {
					p.CellIDs = append(p.CellIDs[:i], p.CellIDs[i+1:]...)
					break
				}
			}
		}
	}
	delete(w.nodes, id)
}

// sortedNodeIDs returns all node ids in ascending order. Consumption and
// ballistic passes iterate in this order so ties resolve deterministically.
func (w *World) sortedNodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(w.nodes))
	for id := range w.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *World) sortedSessionIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddPlayer spawns a player with one cell of the given mass at a uniformly
// random in-bounds position. Idempotent per session id: a second call returns
// the existing player untouched.
func (w *World) AddPlayer(sessionID, wallet, displayName string, spawnMass int64) *Player {
	if p, ok := w.players[sessionID]; ok {
		return p
	}

	color := cellPalette[w.rng.Intn(len(cellPalette))]
	p := &Player{
		SessionID:   sessionID,
		Wallet:      wallet,
		DisplayName: displayName,
		Color:       color,
		Alive:       true,
	}
	w.players[sessionID] = p

	r := MassToRadius(spawnMass)
	cell := w.addNode(&WorldNode{
		Kind:  KindPlayerCell,
		X:     r + w.rng.Float64()*(w.cfg.WorldWidth-2*r),
		Y:     r + w.rng.Float64()*(w.cfg.WorldHeight-2*r),
		Mass:  spawnMass,
		Color: color,
		Owner: sessionID,
	})
	p.CellIDs = append(p.CellIDs, cell.ID)
	return p
}

// SetInput overwrites the player's buffered input. Last write wins.
func (w *World) SetInput(sessionID string, in Input) {
	p, ok := w.players[sessionID]
	if !ok {
		return
	}
	// Edge triggers stay set until consumed by the action phase.
	split := p.Input.Split || in.Split
	eject := p.Input.Eject || in.Eject
	p.Input = in
	p.Input.Split = split
	p.Input.Eject = eject
}

// HasPlayer reports whether a live player exists for the session.
func (w *World) HasPlayer(sessionID string) bool {
	_, ok := w.players[sessionID]
	return ok
}

// RemovePlayer removes all owned nodes then the player record.
func (w *World) RemovePlayer(sessionID string) {
	p, ok := w.players[sessionID]
	if !ok {
		return
	}
	ids := make([]NodeID, len(p.CellIDs))
	copy(ids, p.CellIDs)
	for _, id := range ids {
		delete(w.nodes, id)
	}
	delete(w.players, sessionID)
}

// RekeySession re-homes a player and all owned cells to a new session id
// without destroying nodes (reconnect path).
func (w *World) RekeySession(oldID, newID string) bool {
	p, ok := w.players[oldID]
	if !ok {
		return false
	}
	if _, taken := w.players[newID]; taken {
		return false
	}
	delete(w.players, oldID)
	p.SessionID = newID
	w.players[newID] = p
	for _, id := range p.CellIDs {
		if n, ok := w.nodes[id]; ok {
			n.Owner = newID
		}
	}
	return true
}

// Step advances the world by one tick and returns the domain events it
// produced. Phases run in a fixed order: movement, action triggers,
// consumption, ballistic advance, then the slow path every Nth tick.
func (w *World) Step() []Event {
	w.tick++
	w.events = w.events[:0]

	w.stepMovement()
	w.stepActions()
	w.stepConsumption()
	w.stepBallistics()

	if w.cfg.SlowTickEvery > 0 && w.tick%uint64(w.cfg.SlowTickEvery) == 0 {
		w.stepSlowPath()
	}

	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

// stepSlowPath counts down recombine timers and applies fractional decay to
// cells above the mass floor.
func (w *World) stepSlowPath() {
	for _, sid := range w.sortedSessionIDs() {
		p := w.players[sid]
		var decayed int64
		for _, id := range p.CellIDs {
			n, ok := w.nodes[id]
			if !ok {
				continue
			}
			if n.RecombineTicks > 0 {
				n.RecombineTicks -= w.cfg.SlowTickEvery
				if n.RecombineTicks < 0 {
					n.RecombineTicks = 0
				}
			}
			if n.Mass > w.cfg.DecayMinMass {
				dec := n.Mass * w.cfg.DecayRatePerMille / 1000
				if dec > 0 {
					n.Mass -= dec
					decayed += dec
				}
			}
		}
		if decayed > 0 {
			w.emit(Event{Type: EventMassDecayed, SessionID: sid, Amount: decayed})
		}
	}
}

// Snapshot returns a client-facing view of every node, ordered by id.
func (w *World) Snapshot() []NodeView {
	views := make([]NodeView, 0, len(w.nodes))
	for _, id := range w.sortedNodeIDs() {
		n := w.nodes[id]
		views = append(views, NodeView{
			ID:    n.ID,
			Kind:  n.Kind.String(),
			X:     n.X,
			Y:     n.Y,
			Mass:  n.Mass,
			R:     n.Radius(),
			Color: n.Color,
			Owner: n.Owner,
		})
	}
	return views
}

// Tick returns the current tick counter.
func (w *World) Tick() uint64 { return w.tick }

// PlayerCount returns the number of live players.
func (w *World) PlayerCount() int { return len(w.players) }
