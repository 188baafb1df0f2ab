package game

import (
	"reflect"
	"testing"

	"github.com/massarena/backend/internal/config"
)

func testWorld(seed int64) *World {
	return NewWorld(config.DefaultRoomConfig(), seed)
}

func TestSplitHalvesMassAndBurstsChild(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 100)
	cell := w.nodes[p.CellIDs[0]]

	w.SetInput("s1", Input{AimX: cell.X + 500, AimY: cell.Y, Split: true})
	w.Step()

	if len(p.CellIDs) != 2 {
		t.Fatalf("expected 2 cells after split, got %d", len(p.CellIDs))
	}
	parent := w.nodes[p.CellIDs[0]]
	child := w.nodes[p.CellIDs[1]]
	if parent.Mass != 50 || child.Mass != 50 {
		t.Errorf("split masses wrong: parent=%d child=%d", parent.Mass, child.Mass)
	}
	if child.Move == nil || child.Move.TicksRemaining <= 0 {
		t.Errorf("child has no active burst move: %+v", child.Move)
	}
	if child.RecombineTicks <= 0 || parent.RecombineTicks <= 0 {
		t.Errorf("recombine timers not set: parent=%d child=%d", parent.RecombineTicks, child.RecombineTicks)
	}
}

func TestSplitBelowMinimumIsNoop(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 20) // below SplitMinMass

	w.SetInput("s1", Input{Split: true})
	w.Step()

	if len(p.CellIDs) != 1 {
		t.Fatalf("cell below split minimum still split: %d cells", len(p.CellIDs))
	}
}

func TestEjectBelowMinimumIsNoop(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 20) // below EjectMinMass

	w.SetInput("s1", Input{Eject: true})
	w.Step()

	if got := len(w.nodes); got != 1 {
		t.Fatalf("expected no ejected node, world has %d nodes", got)
	}
	if m := w.nodes[p.CellIDs[0]].Mass; m != 20 {
		t.Errorf("cell mass changed on denied eject: %d", m)
	}
}

func TestEjectShedsFixedMass(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 100)
	cell := w.nodes[p.CellIDs[0]]

	w.SetInput("s1", Input{AimX: cell.X + 100, AimY: cell.Y, Eject: true})
	w.Step()

	if cell.Mass != 100-w.cfg.EjectMassLoss {
		t.Errorf("cell mass after eject = %d, want %d", cell.Mass, 100-w.cfg.EjectMassLoss)
	}
	ejected := 0
	for _, n := range w.nodes {
		if n.Kind == KindEjected {
			ejected++
			if n.Mass != w.cfg.EjectedMass {
				t.Errorf("ejected mass = %d, want %d", n.Mass, w.cfg.EjectedMass)
			}
		}
	}
	if ejected != 1 {
		t.Errorf("expected 1 ejected node, got %d", ejected)
	}
}

func TestVirusPopConservesMass(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 300)
	cell := w.nodes[p.CellIDs[0]]

	// Aim at the cell's own position so movement keeps it on the virus.
	w.SetInput("s1", Input{AimX: cell.X, AimY: cell.Y})
	w.addNode(&WorldNode{Kind: KindVirus, X: cell.X, Y: cell.Y, Mass: w.cfg.VirusMass})

	events := w.Step()

	total := w.TotalMass("s1")
	if total != 300+w.cfg.VirusMass {
		t.Errorf("pop lost mass: total=%d want %d", total, 300+w.cfg.VirusMass)
	}
	if len(p.CellIDs) < 2 {
		t.Errorf("pop produced no extra cells: %d", len(p.CellIDs))
	}
	popped := false
	for _, ev := range events {
		if ev.Type == EventVirusPopped {
			popped = true
		}
	}
	if !popped {
		t.Error("no virus_popped event emitted")
	}
	for _, n := range w.nodes {
		if n.Kind == KindVirus {
			t.Error("virus survived being eaten")
		}
	}
}

func TestRivalEatEmitsPlayerDied(t *testing.T) {
	w := testWorld(1)
	hunter := w.AddPlayer("hunter", "0xaa", "alice", 500)
	prey := w.AddPlayer("prey", "0xbb", "bob", 100)

	hc := w.nodes[hunter.CellIDs[0]]
	pc := w.nodes[prey.CellIDs[0]]
	pc.X, pc.Y = hc.X, hc.Y

	w.SetInput("hunter", Input{AimX: hc.X, AimY: hc.Y})
	w.SetInput("prey", Input{AimX: hc.X, AimY: hc.Y})
	events := w.Step()

	died := false
	for _, ev := range events {
		if ev.Type == EventPlayerDied && ev.SessionID == "prey" && ev.Killer == "hunter" {
			died = true
		}
	}
	if !died {
		t.Fatal("no player_died event for eaten prey")
	}
	if prey.Alive {
		t.Error("prey still marked alive")
	}
	if got := w.TotalMass("hunter"); got != 600 {
		t.Errorf("hunter mass = %d, want 600", got)
	}
}

func TestDecayBurnsMassAboveFloor(t *testing.T) {
	cfg := config.DefaultRoomConfig()
	cfg.SlowTickEvery = 1
	w := NewWorld(cfg, 1)
	w.AddPlayer("s1", "0xaa", "alice", 1000)

	events := w.Step()

	var decayed int64
	for _, ev := range events {
		if ev.Type == EventMassDecayed && ev.SessionID == "s1" {
			decayed = ev.Amount
		}
	}
	want := int64(1000 * cfg.DecayRatePerMille / 1000)
	if decayed != want {
		t.Errorf("decay amount = %d, want %d", decayed, want)
	}
	if got := w.TotalMass("s1"); got != 1000-want {
		t.Errorf("mass after decay = %d, want %d", got, 1000-want)
	}
}

func TestDecaySparesSmallCells(t *testing.T) {
	cfg := config.DefaultRoomConfig()
	cfg.SlowTickEvery = 1
	w := NewWorld(cfg, 1)
	w.AddPlayer("s1", "0xaa", "alice", cfg.DecayMinMass)

	w.Step()

	if got := w.TotalMass("s1"); got != cfg.DecayMinMass {
		t.Errorf("cell at decay floor lost mass: %d", got)
	}
}

func TestAddPlayerIdempotent(t *testing.T) {
	w := testWorld(1)
	p1 := w.AddPlayer("s1", "0xaa", "alice", 100)
	p2 := w.AddPlayer("s1", "0xaa", "alice", 100)
	if p1 != p2 {
		t.Error("second AddPlayer created a new player")
	}
	if w.PlayerCount() != 1 || len(w.nodes) != 1 {
		t.Errorf("duplicate join changed world: players=%d nodes=%d", w.PlayerCount(), len(w.nodes))
	}
}

func TestRekeySessionMovesOwnership(t *testing.T) {
	w := testWorld(1)
	w.AddPlayer("old", "0xaa", "alice", 100)

	if !w.RekeySession("old", "new") {
		t.Fatal("rekey failed")
	}
	if w.HasPlayer("old") || !w.HasPlayer("new") {
		t.Fatal("player not re-homed")
	}
	for _, n := range w.nodes {
		if n.Kind == KindPlayerCell && n.Owner != "new" {
			t.Errorf("cell still owned by %q", n.Owner)
		}
	}
	if w.RekeySession("old", "newer") {
		t.Error("rekey of missing session succeeded")
	}
}

func TestStepIsDeterministicForSameSeed(t *testing.T) {
	run := func() []NodeView {
		w := testWorld(42)
		w.SpawnFoodBatch(50)
		w.AddPlayer("a", "0xaa", "alice", 200)
		w.AddPlayer("b", "0xbb", "bob", 150)
		w.SetInput("a", Input{AimX: 7000, AimY: 7000, Split: true})
		w.SetInput("b", Input{AimX: 0, AimY: 0, Eject: true})
		for i := 0; i < 100; i++ {
			w.Step()
		}
		return w.Snapshot()
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical seeds and inputs diverged")
	}
}

func TestSetInputLatchesEdgeTriggers(t *testing.T) {
	w := testWorld(1)
	p := w.AddPlayer("s1", "0xaa", "alice", 100)

	// A fast client presses split then sends a plain aim update before the
	// next tick; the press must not be lost.
	w.SetInput("s1", Input{Split: true})
	w.SetInput("s1", Input{AimX: 100})
	if !p.Input.Split {
		t.Fatal("split edge trigger was overwritten")
	}

	w.Step()
	if p.Input.Split {
		t.Error("split trigger not cleared after consumption")
	}
}

func TestInitialPopulationFills(t *testing.T) {
	w := testWorld(3)

	if got := w.SpawnInitialFood(200); got != 200 {
		t.Fatalf("spawned %d pellets, want 200", got)
	}
	if w.FoodCount() != 200 {
		t.Errorf("food count = %d, want 200", w.FoodCount())
	}
	// A second fill is a no-op at the same ceiling.
	if got := w.SpawnInitialFood(200); got != 0 {
		t.Errorf("refill spawned %d pellets, want 0", got)
	}

	spawned := w.EnsureVirusMin()
	if spawned != w.cfg.VirusMin {
		t.Errorf("spawned %d viruses, want %d", spawned, w.cfg.VirusMin)
	}
	if w.VirusCount() != w.cfg.VirusMin {
		t.Errorf("virus count = %d, want %d", w.VirusCount(), w.cfg.VirusMin)
	}
	if got := w.EnsureVirusMin(); got != 0 {
		t.Errorf("second ensure spawned %d viruses, want 0", got)
	}
}

func TestEatThresholdIsRadiusRatio(t *testing.T) {
	w := testWorld(1)
	hunter := w.AddPlayer("hunter", "0xaa", "alice", 140)
	prey := w.AddPlayer("prey", "0xbb", "bob", 100)

	hc := w.nodes[hunter.CellIDs[0]]
	pc := w.nodes[prey.CellIDs[0]]
	pc.X, pc.Y = hc.X, hc.Y
	w.SetInput("hunter", Input{AimX: hc.X, AimY: hc.Y})
	w.SetInput("prey", Input{AimX: hc.X, AimY: hc.Y})

	// 140 vs 100 is a 1.4x mass advantage but only ~1.19x in radius,
	// short of the 1.25 threshold.
	w.Step()
	if !prey.Alive || w.TotalMass("prey") != 100 {
		t.Fatalf("prey eaten below the radius threshold: alive=%v mass=%d", prey.Alive, w.TotalMass("prey"))
	}

	// Radius 127 vs the 125 threshold clears it.
	hc.Mass = 160
	pc.X, pc.Y = hc.X, hc.Y
	w.Step()
	if prey.Alive {
		t.Error("prey survived above the radius threshold")
	}
	if got := w.TotalMass("hunter"); got != 260 {
		t.Errorf("hunter mass = %d, want 260", got)
	}
}
