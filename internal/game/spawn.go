package game

// FoodCount returns the number of food pellets currently in the world.
func (w *World) FoodCount() int {
	count := 0
	for _, n := range w.nodes {
		if n.Kind == KindFood {
			count++
		}
	}
	return count
}

// VirusCount returns the number of viruses currently in the world.
func (w *World) VirusCount() int {
	count := 0
	for _, n := range w.nodes {
		if n.Kind == KindVirus {
			count++
		}
	}
	return count
}

// SpawnFoodBatch spawns exactly n food pellets at random positions and
// returns how many were spawned. Callers are responsible for spending pellet
// reserve liquidity before calling; the world itself never checks funds.
func (w *World) SpawnFoodBatch(n int) int {
	for i := 0; i < n; i++ {
		r := MassToRadius(w.cfg.FoodMass)
		w.addNode(&WorldNode{
			Kind:  KindFood,
			X:     r + w.rng.Float64()*(w.cfg.WorldWidth-2*r),
			Y:     r + w.rng.Float64()*(w.cfg.WorldHeight-2*r),
			Mass:  w.cfg.FoodMass,
			Color: cellPalette[w.rng.Intn(len(cellPalette))],
		})
	}
	return n
}

// SpawnInitialFood fills the world up to the given ceiling on room start.
func (w *World) SpawnInitialFood(ceiling int) int {
	missing := ceiling - w.FoodCount()
	if missing <= 0 {
		return 0
	}
	return w.SpawnFoodBatch(missing)
}

// EnsureVirusMin tops the virus population up to the configured minimum and
// returns how many spawned. Placement uses rejection sampling so a virus
// never appears inside an existing virus or a cell big enough to pop on it.
func (w *World) EnsureVirusMin() int {
	spawned := 0
	for w.VirusCount()+spawned < w.cfg.VirusMin {
		if !w.trySpawnVirus() {
			break
		}
		spawned++
	}
	return spawned
}

// SpawnVirus places a single virus, or reports false if no clear spot was
// found. Callers fund the spawn before calling.
func (w *World) SpawnVirus() bool {
	return w.trySpawnVirus()
}

func (w *World) trySpawnVirus() bool {
	r := MassToRadius(w.cfg.VirusMass)

	for attempt := 0; attempt < 10; attempt++ {
		x := r + w.rng.Float64()*(w.cfg.WorldWidth-2*r)
		y := r + w.rng.Float64()*(w.cfg.WorldHeight-2*r)

		blocked := false
		for _, n := range w.nodes {
			switch n.Kind {
			case KindVirus:
				if Distance(x, y, n.X, n.Y) < (r+n.Radius())*1.5 {
					blocked = true
				}
			case KindPlayerCell:
				if n.Radius() >= w.cfg.EatRatio*r &&
					Distance(x, y, n.X, n.Y) < r+n.Radius() {
					blocked = true
				}
			}
			if blocked {
				break
			}
		}
		if blocked {
			continue
		}

		w.addNode(&WorldNode{
			Kind:  KindVirus,
			X:     x,
			Y:     y,
			Mass:  w.cfg.VirusMass,
			Color: "#33ff33",
		})
		return true
	}
	return false
}
