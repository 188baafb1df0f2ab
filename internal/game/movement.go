package game

import "math"

// stepMovement advances every player cell toward its owner's aim point,
// resolves same-owner soft collisions, then clamps to world bounds.
func (w *World) stepMovement() {
	tickRate := float64(w.cfg.TickRate)

	for _, sid := range w.sortedSessionIDs() {
		p := w.players[sid]
		for _, id := range p.CellIDs {
			n, ok := w.nodes[id]
			if !ok {
				continue
			}
			if n.IgnoreCollisionTicks > 0 {
				n.IgnoreCollisionTicks--
			}

			dist := Distance(n.X, n.Y, p.Input.AimX, p.Input.AimY)
			if dist > 0.1 {
				speed := SpeedFromMass(n.Mass, w.cfg.BaseSpeed, w.cfg.SpeedExponent) / tickRate
				if speed > dist {
					speed = dist
				}
				angle := AngleToward(n.X, n.Y, p.Input.AimX, p.Input.AimY)
				n.X += math.Cos(angle) * speed
				n.Y += math.Sin(angle) * speed
			}
		}

		w.pushApartSiblings(p)

		for _, id := range p.CellIDs {
			if n, ok := w.nodes[id]; ok {
				n.X, n.Y = clampToBounds(n.X, n.Y, n.Radius(), w.cfg.WorldWidth, w.cfg.WorldHeight)
			}
		}
	}
}

// pushApartSiblings resolves soft collisions between cells of the same owner
// that are still inside their recombine window: overlapping pairs are pushed
// apart along the center line, half the overlap each.
func (w *World) pushApartSiblings(p *Player) {
	for i := 0; i < len(p.CellIDs); i++ {
		a, ok := w.nodes[p.CellIDs[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(p.CellIDs); j++ {
			b, ok := w.nodes[p.CellIDs[j]]
			if !ok {
				continue
			}
			if a.RecombineTicks <= 0 && b.RecombineTicks <= 0 {
				continue // merge-eligible, consumption handles them
			}
			if a.IgnoreCollisionTicks > 0 || b.IgnoreCollisionTicks > 0 {
				continue
			}
			dist := Distance(a.X, a.Y, b.X, b.Y)
			minDist := a.Radius() + b.Radius()
			if dist >= minDist {
				continue
			}
			var angle float64
			if dist > 0.01 {
				angle = AngleToward(a.X, a.Y, b.X, b.Y)
			} else {
				angle = float64(a.ID%8) * math.Pi / 4
			}
			push := (minDist - dist) / 2
			a.X -= math.Cos(angle) * push
			a.Y -= math.Sin(angle) * push
			b.X += math.Cos(angle) * push
			b.Y += math.Sin(angle) * push
		}
	}
}

// stepBallistics advances every node with an active move descriptor using
// exponential speed decay and border reflection. Moving ejected mass tries to
// feed a nearby virus each tick, including the tick it stops on.
func (w *World) stepBallistics() {
	tickRate := float64(w.cfg.TickRate)

	for _, id := range w.sortedNodeIDs() {
		n, ok := w.nodes[id]
		if !ok || n.Move == nil {
			continue
		}
		m := n.Move

		n.X += math.Cos(m.Angle) * m.Speed / tickRate
		n.Y += math.Sin(m.Angle) * m.Speed / tickRate
		n.X, n.Y, m.Angle = reflectOffBorders(n.X, n.Y, n.Radius(), m.Angle, w.cfg.WorldWidth, w.cfg.WorldHeight)

		m.Speed *= m.Decay
		m.TicksRemaining--
		stopped := m.TicksRemaining <= 0 || m.Speed < 1
		if stopped {
			n.Move = nil
		}
		if n.Kind == KindEjected {
			n.LastAngle = m.Angle
			w.tryFeedVirus(n)
		}
	}
}

// tryFeedVirus feeds the first overlapping virus with the ejected node's mass.
// A virus that accumulates enough feeds shoots a new virus along the last feed
// direction.
func (w *World) tryFeedVirus(ejected *WorldNode) {
	for _, id := range w.sortedNodeIDs() {
		v, ok := w.nodes[id]
		if !ok || v.Kind != KindVirus {
			continue
		}
		if Distance(ejected.X, ejected.Y, v.X, v.Y) > v.Radius()+ejected.Radius() {
			continue
		}

		v.Mass += ejected.Mass
		v.FeedCount++
		v.LastFeedAngle = ejected.LastAngle
		w.removeNode(ejected.ID)
		w.emit(Event{Type: EventVirusFed, NodeID: v.ID, Amount: ejected.Mass})

		if v.FeedCount >= w.cfg.VirusFeedsToShoot {
			w.shootVirus(v)
		}
		return
	}
}

// shootVirus spawns a new virus launched along the feeding direction and
// resets the shooter back to its base mass.
func (w *World) shootVirus(v *WorldNode) {
	v.FeedCount = 0
	v.Mass = w.cfg.VirusMass

	r := MassToRadius(w.cfg.VirusMass)
	child := w.addNode(&WorldNode{
		Kind:  KindVirus,
		X:     v.X + math.Cos(v.LastFeedAngle)*r,
		Y:     v.Y + math.Sin(v.LastFeedAngle)*r,
		Mass:  w.cfg.VirusMass,
		Color: v.Color,
		Move: &MoveEngine{
			Angle:          v.LastFeedAngle,
			Speed:          w.cfg.VirusShotSpeed,
			TicksRemaining: 20,
			Decay:          w.cfg.MoveDecay,
		},
	})
	w.emit(Event{Type: EventVirusShot, NodeID: child.ID})
}
