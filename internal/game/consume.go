package game

import "math"

// stepConsumption lets every player cell eat what it covers: food and ejected
// mass transfer their mass, rival cells transfer mass and die, viruses force a
// pop. Candidates are built fresh per eater in ascending node-id order and
// consumed in that order; no score is involved in tie-breaking.
func (w *World) stepConsumption() {
	for _, sid := range w.sortedSessionIDs() {
		p, ok := w.players[sid]
		if !ok {
			continue
		}
		for _, cid := range append([]NodeID(nil), p.CellIDs...) {
			eater, ok := w.nodes[cid]
			if !ok {
				continue
			}
			for _, tid := range w.eatCandidates(eater) {
				target, ok := w.nodes[tid]
				if !ok {
					continue // consumed earlier this tick
				}
				w.consume(p, eater, target)
				if _, alive := w.nodes[cid]; !alive {
					break
				}
			}
		}
	}
}

// eatCandidates lists nodes the eater currently covers enough to consume:
// radius ratio at or above the configured threshold and overlap at or above
// the configured fraction.
func (w *World) eatCandidates(eater *WorldNode) []NodeID {
	var out []NodeID
	er := eater.Radius()

	for _, id := range w.sortedNodeIDs() {
		n := w.nodes[id]
		if n.ID == eater.ID {
			continue
		}

		switch n.Kind {
		case KindPlayerCell:
			if n.Owner == eater.Owner {
				// Sibling merge: only once both recombine windows expired.
				if eater.RecombineTicks > 0 || n.RecombineTicks > 0 {
					continue
				}
				if eater.Mass < n.Mass {
					continue
				}
			} else {
				if er < w.cfg.EatRatio*n.Radius() {
					continue
				}
			}
		case KindVirus:
			if er < w.cfg.EatRatio*n.Radius() {
				continue
			}
		default:
			if er < w.cfg.EatRatio*n.Radius() {
				continue
			}
		}

		dist := Distance(eater.X, eater.Y, n.X, n.Y)
		if dist > er-n.Radius()*w.cfg.EatOverlapFrac {
			continue
		}
		out = append(out, id)
	}
	return out
}

// consume applies one eat. Rival cells emit playerDied when the victim's last
// cell goes; viruses pop the eater instead of feeding it normally.
func (w *World) consume(p *Player, eater, target *WorldNode) {
	switch target.Kind {
	case KindFood, KindEjected:
		w.applyMassGain(p, eater, target.Mass)
		w.removeNode(target.ID)

	case KindPlayerCell:
		if target.Owner == p.SessionID {
			// merge: no ratio bookkeeping, mass just recombines
			w.applyMassGain(p, eater, target.Mass)
			w.removeNode(target.ID)
			return
		}
		victimID := target.Owner
		w.applyMassGain(p, eater, target.Mass)
		w.removeNode(target.ID)
		if victim, ok := w.players[victimID]; ok && len(victim.CellIDs) == 0 {
			victim.Alive = false
			w.emit(Event{Type: EventPlayerDied, SessionID: victimID, Killer: p.SessionID})
		}

	case KindVirus:
		virusMass := target.Mass
		virusID := target.ID
		w.removeNode(virusID)
		w.popCell(p, eater, virusMass)
		w.emit(Event{Type: EventVirusPopped, SessionID: p.SessionID, NodeID: eater.ID, Amount: virusMass})
	}
}

// popCell forcibly splits a cell that ate a virus. Total mass (cell + virus)
// is conserved exactly. Policy: big pieces first, then the remaining budget
// divided equally over the remaining free slots, integer remainder going to
// the first small piece.
func (w *World) popCell(p *Player, eater *WorldNode, virusMass int64) {
	total := eater.Mass + virusMass
	slots := w.cfg.MaxCells - len(p.CellIDs)
	if slots <= 0 {
		if total > w.cfg.MaxMassPerCell {
			total = w.cfg.MaxMassPerCell
		}
		eater.Mass = total
		return
	}

	budget := total / 2

	var pieces []int64
	nBig := budget / w.cfg.PopBigMass
	if nBig > int64(slots) {
		nBig = int64(slots)
	}
	for i := int64(0); i < nBig; i++ {
		pieces = append(pieces, w.cfg.PopBigMass)
		budget -= w.cfg.PopBigMass
	}

	smallSlots := int64(slots) - nBig
	if budget > 0 && smallSlots > 0 {
		small := budget / smallSlots
		rem := budget % smallSlots
		for i := int64(0); i < smallSlots; i++ {
			m := small
			if i == 0 {
				m += rem
			}
			if m <= 0 {
				continue
			}
			pieces = append(pieces, m)
		}
		budget = 0
	}

	var spent int64
	for _, m := range pieces {
		spent += m
	}
	eater.Mass = total - spent
	eater.RecombineTicks = w.recombineTicksFor(eater.Mass)

	for i, m := range pieces {
		angle := 2*math.Pi*float64(i)/float64(len(pieces)) + (w.rng.Float64()-0.5)*0.3
		child := w.addNode(&WorldNode{
			Kind:                 KindPlayerCell,
			X:                    eater.X + math.Cos(angle)*eater.Radius(),
			Y:                    eater.Y + math.Sin(angle)*eater.Radius(),
			Mass:                 m,
			Color:                eater.Color,
			Owner:                p.SessionID,
			RecombineTicks:       w.recombineTicksFor(m),
			IgnoreCollisionTicks: 15,
			Move: &MoveEngine{
				Angle:          angle,
				Speed:          w.cfg.SplitSpeed,
				TicksRemaining: 20,
				Decay:          w.cfg.MoveDecay,
			},
		})
		p.CellIDs = append(p.CellIDs, child.ID)
	}
}
