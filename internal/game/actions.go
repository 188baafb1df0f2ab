package game

import "math"

// stepActions fires each player's edge-triggered split/eject at most once per
// tick, then clears the trigger.
func (w *World) stepActions() {
	for _, sid := range w.sortedSessionIDs() {
		p := w.players[sid]
		if p.Input.Split {
			w.performSplit(p)
			p.Input.Split = false
		}
		if p.Input.Eject {
			w.performEject(p)
			p.Input.Eject = false
		}
	}
}

// recombineTicksFor scales the merge cooldown with the resulting cell mass.
func (w *World) recombineTicksFor(mass int64) int {
	return w.cfg.RecombineBaseTicks + int(float64(mass)*w.cfg.RecombineMassFactor)
}

// performSplit splits every eligible cell once: the child takes half the
// parent's mass and bursts toward the aim point.
func (w *World) performSplit(p *Player) {
	budget := w.cfg.MaxCells - len(p.CellIDs)
	if budget <= 0 {
		return
	}

	parents := make([]NodeID, len(p.CellIDs))
	copy(parents, p.CellIDs)

	for _, id := range parents {
		if budget <= 0 {
			return
		}
		n, ok := w.nodes[id]
		if !ok || n.Mass < w.cfg.SplitMinMass {
			continue
		}

		childMass := n.Mass / 2
		n.Mass -= childMass
		n.RecombineTicks = w.recombineTicksFor(n.Mass)

		angle := AngleToward(n.X, n.Y, p.Input.AimX, p.Input.AimY)
		child := w.addNode(&WorldNode{
			Kind:                 KindPlayerCell,
			X:                    n.X + math.Cos(angle)*n.Radius(),
			Y:                    n.Y + math.Sin(angle)*n.Radius(),
			Mass:                 childMass,
			Color:                n.Color,
			Owner:                p.SessionID,
			RecombineTicks:       w.recombineTicksFor(childMass),
			IgnoreCollisionTicks: 15,
			Move: &MoveEngine{
				Angle:          angle,
				Speed:          w.cfg.SplitSpeed,
				TicksRemaining: 20,
				Decay:          w.cfg.MoveDecay,
			},
		})
		p.CellIDs = append(p.CellIDs, child.ID)
		budget--
	}
}

// performEject sheds a fixed mass amount from every eligible cell as a small
// ejected blob with a jittered burst angle. Cells below the eject minimum are
// left untouched.
func (w *World) performEject(p *Player) {
	for _, id := range append([]NodeID(nil), p.CellIDs...) {
		n, ok := w.nodes[id]
		if !ok || n.Mass < w.cfg.EjectMinMass {
			continue
		}

		n.Mass -= w.cfg.EjectMassLoss

		angle := AngleToward(n.X, n.Y, p.Input.AimX, p.Input.AimY)
		angle += (w.rng.Float64() - 0.5) * 0.4
		w.addNode(&WorldNode{
			Kind:      KindEjected,
			X:         n.X + math.Cos(angle)*n.Radius(),
			Y:         n.Y + math.Sin(angle)*n.Radius(),
			Mass:      w.cfg.EjectedMass,
			Color:     n.Color,
			LastAngle: angle,
			Move: &MoveEngine{
				Angle:          angle,
				Speed:          w.cfg.EjectSpeed,
				TicksRemaining: 20,
				Decay:          w.cfg.MoveDecay,
			},
		})
	}
}

// applyMassGain credits eaten mass to a cell. Gain past the per-cell maximum
// auto-splits into a free cell slot; with no slot free the cell caps out and
// the excess is burned.
func (w *World) applyMassGain(p *Player, cell *WorldNode, gain int64) {
	newMass := cell.Mass + gain
	if newMass <= w.cfg.MaxMassPerCell {
		cell.Mass = newMass
		return
	}

	if len(p.CellIDs) < w.cfg.MaxCells {
		childMass := newMass / 2
		cell.Mass = newMass - childMass
		cell.RecombineTicks = w.recombineTicksFor(cell.Mass)

		// Deterministic burst angle: overflow splits must not disturb
		// combat resolution.
		angle := float64(cell.ID%16) * math.Pi / 8
		child := w.addNode(&WorldNode{
			Kind:                 KindPlayerCell,
			X:                    cell.X + math.Cos(angle)*cell.Radius(),
			Y:                    cell.Y + math.Sin(angle)*cell.Radius(),
			Mass:                 childMass,
			Color:                cell.Color,
			Owner:                p.SessionID,
			RecombineTicks:       w.recombineTicksFor(childMass),
			IgnoreCollisionTicks: 15,
			Move: &MoveEngine{
				Angle:          angle,
				Speed:          w.cfg.SplitSpeed,
				TicksRemaining: 20,
				Decay:          w.cfg.MoveDecay,
			},
		})
		p.CellIDs = append(p.CellIDs, child.ID)
		return
	}

	cell.Mass = w.cfg.MaxMassPerCell
}
