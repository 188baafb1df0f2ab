package game

// NodeID identifies a world node, unique within one room.
type NodeID uint32

// NodeKind discriminates the WorldNode union.
type NodeKind uint8

const (
	KindPlayerCell NodeKind = iota + 1
	KindFood
	KindEjected
	KindVirus
)

func (k NodeKind) String() string {
	switch k {
	case KindPlayerCell:
		return "cell"
	case KindFood:
		return "food"
	case KindEjected:
		return "ejected"
	case KindVirus:
		return "virus"
	}
	return "unknown"
}

// MoveEngine is transient ballistic motion layered on top of ordinary
// movement: split bursts, ejected mass, shot viruses. It is owned by the node
// it is attached to and removed when TicksRemaining hits zero.
type MoveEngine struct {
	Angle          float64
	Speed          float64 // world units per second, decays per tick
	TicksRemaining int
	Decay          float64
}

// WorldNode is the tagged union of everything living in a room: one struct,
// one arena map, kind-specific fields left zero for other kinds.
type WorldNode struct {
	ID    NodeID
	Kind  NodeKind
	X, Y  float64
	Mass  int64
	Color string

	// KindPlayerCell
	Owner                string // session id
	RecombineTicks       int
	IgnoreCollisionTicks int

	// KindEjected
	LastAngle float64

	// KindVirus
	FeedCount     int
	LastFeedAngle float64

	Move *MoveEngine
}

// Radius returns the node's current radius from its mass.
func (n *WorldNode) Radius() float64 {
	return MassToRadius(n.Mass)
}

// NodeView is the per-node snapshot sent to clients, kind-tagged with only the
// fields a renderer needs.
type NodeView struct {
	ID    NodeID  `json:"id"`
	Kind  string  `json:"kind"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Mass  int64   `json:"mass"`
	R     float64 `json:"r"`
	Color string  `json:"color,omitempty"`
	Owner string  `json:"owner,omitempty"`
}

// Input is a player's buffered intent: aim point plus edge-triggered actions.
// Last write wins; stale input between ticks is simply re-applied.
type Input struct {
	AimX  float64 `json:"aim_x"`
	AimY  float64 `json:"aim_y"`
	Split bool    `json:"split"`
	Eject bool    `json:"eject"`
}

// Player owns 1..MaxCells cells; CellIDs is the only ownership edge.
type Player struct {
	SessionID   string
	Wallet      string
	DisplayName string
	Color       string
	CellIDs     []NodeID
	Input       Input
	Alive       bool
}

// TotalMass sums the mass of all cells a player owns.
func (w *World) TotalMass(sessionID string) int64 {
	p, ok := w.players[sessionID]
	if !ok {
		return 0
	}
	var total int64
	for _, id := range p.CellIDs {
		if n, ok := w.nodes[id]; ok {
			total += n.Mass
		}
	}
	return total
}
