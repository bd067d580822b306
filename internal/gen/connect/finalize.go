package connect

import (
	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/scene"
)

// Finalize closes off the openings no seam uses and links every vent to
// its closest oxygen generator. Run it once, after Connect.
func (s *Synthesizer) Finalize(l *layout.Layout) {
	used := map[scene.EntityID]bool{}
	for _, n := range l.Nodes() {
		if n.Parent == layout.NoNode {
			continue
		}
		if g, err := s.outerGap(n, n.ThisGap); err == nil {
			used[g.ID] = true
		}
		if p := l.Node(n.Parent); p != nil {
			if g, err := s.outerGap(p, n.ParentGap()); err == nil {
				used[g.ID] = true
			}
		}
	}

	for _, n := range l.Nodes() {
		for _, g := range s.entitiesOf(n.Instance, scene.KindGap) {
			if used[g.ID] {
				continue
			}
			var door *scene.Entity
			if g.Door != 0 {
				door, _ = s.world.Get(g.Door)
			}
			if door != nil && !door.BetweenModules {
				continue
			}
			if s.internal(g) {
				continue
			}
			switch {
			case door != nil && s.opts.LockUnusedDoors:
				s.lock(door, g)
			case door == nil && s.opts.RemoveUnusedGaps:
				for _, wp := range s.entitiesOf(g.Module, scene.KindWaypoint) {
					if wp.Gap == g.ID {
						s.world.Remove(wp.ID)
					}
				}
				s.world.Remove(g.ID)
			}
		}
	}
	s.linkVents()
}

// internal reports whether gap joins two rooms of its own module.
func (s *Synthesizer) internal(gap *scene.Entity) bool {
	if len(gap.Links) != 2 {
		return false
	}
	for _, id := range gap.Links {
		room, ok := s.world.Get(id)
		if !ok || room.Module != gap.Module {
			return false
		}
	}
	return true
}

func (s *Synthesizer) lock(door, gap *scene.Entity) {
	door.Locked = true
	s.world.Touch(door.ID)
	if jb, ok := s.junctionAt(gap); ok {
		jb.Locked = true
		s.world.Touch(jb.ID)
	}
}

func (s *Synthesizer) linkVents() {
	var gens, vents []*scene.Entity
	for _, d := range s.world.OfKind(scene.KindDevice) {
		switch d.DeviceKind {
		case catalogs.DeviceOxygenGenerator:
			gens = append(gens, d)
		case catalogs.DeviceVent:
			vents = append(vents, d)
		}
	}
	for _, v := range vents {
		var closest *scene.Entity
		var best int64
		for _, g := range gens {
			d := g.Rect.Center().DistSq(v.Rect.Center())
			if closest == nil || d < best {
				closest, best = g, d
			}
		}
		if closest != nil {
			s.world.Link(closest.ID, v.ID)
		}
	}
}
