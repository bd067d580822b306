package connect

import (
	"fmt"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/scene"
)

const (
	TagHallwayHorizontal = "hallwayhorizontal"
	TagHallwayVertical   = "hallwayvertical"
)

// hallway instantiates a connector module centred on the seam and stretches
// it along the seam axis to fill it exactly. The connector's own openings
// are dropped; the modules' doors serve the seam. On short seams the
// connector keeps only its walls.
func (s *Synthesizer) hallway(sm *seam) (scene.Handle, error) {
	tag := TagHallwayVertical
	if sm.horizontal {
		tag = TagHallwayHorizontal
	}
	t, ok := s.pickHallway(sm, tag)
	if !ok {
		s.logger.Printf("error: connect: no %s module suitable between %s and %s (location type %q)",
			tag, sm.child.Template, sm.parent.Template, s.opts.LocationType)
		return 0, fmt.Errorf("connect: no %s module for %s/%s", tag, sm.child.Template, sm.parent.Template)
	}

	var largest geom.Rect
	for _, hd := range t.Hulls {
		if hd.Rect.W*hd.Rect.H > largest.W*largest.H {
			largest = hd.Rect
		}
	}
	tc, pc := sm.thisGap.Rect.Center(), sm.prevGap.Rect.Center()
	mid := geom.Vec2{X: (tc.X + pc.X) / 2, Y: (tc.Y + pc.Y) / 2}
	offset := mid.Sub(largest.Center())
	h := s.world.Instantiate(t, offset, t.Flags)
	hb := t.HullBounds.Translate(offset)

	extent := hb.H
	if sm.horizontal {
		extent = hb.W
	}
	if extent <= 0 {
		s.world.Teardown(h)
		return 0, fmt.Errorf("connect: hallway %s has no rooms", t)
	}
	scale := float64(sm.length) / float64(extent)

	for _, k := range []scene.Kind{scene.KindWaypoint, scene.KindJunction, scene.KindDoor, scene.KindGap} {
		for _, e := range s.entitiesOf(h, k) {
			s.world.Remove(e.ID)
		}
	}
	for _, e := range s.entitiesOf(h, scene.KindDevice) {
		if (sm.horizontal && e.Rect.W > sm.length) || (!sm.horizontal && e.Rect.H > sm.length) {
			s.world.Remove(e.ID)
		}
	}

	short := sm.length <= s.cfg.MinTwoDoorHallway
	in, _ := s.world.Instance(h)
	for _, id := range append([]scene.EntityID(nil), in.Entities...) {
		e, ok := s.world.Get(id)
		if !ok {
			continue
		}
		switch e.Kind {
		case scene.KindHull:
			if short {
				s.world.Remove(e.ID)
				continue
			}
			if sm.horizontal {
				e.Rect = geom.Rect{X: sm.low.Rect.Right(), Y: e.Rect.Y, W: sm.length, H: e.Rect.H}
			} else {
				e.Rect = geom.Rect{X: e.Rect.X, Y: sm.low.Rect.Top(), W: e.Rect.W, H: sm.length}
			}
		case scene.KindStructure, scene.KindDevice:
			s.stretch(e, sm, hb, scale)
		default:
			continue
		}
		s.world.Touch(e.ID)
	}

	if !short {
		s.pathThrough(sm, h, hb)
	}
	return h, nil
}

// pickHallway prefers connectors whitelisted for both modules, then ones
// that attach to anything.
func (s *Synthesizer) pickHallway(sm *seam, tag string) (*catalogs.ModuleTemplate, bool) {
	both := func(m *catalogs.ModuleTemplate) bool {
		return !m.AttachesToAny() && m.CanAttachTo(sm.child.Template) && m.CanAttachTo(sm.parent.Template)
	}
	anyMod := func(m *catalogs.ModuleTemplate) bool { return m.AttachesToAny() }
	for _, filter := range []func(*catalogs.ModuleTemplate) bool{both, anyMod} {
		if cands, _ := s.cat.FindCandidates(tag, s.opts.LocationType, filter); len(cands) > 0 {
			return catalogs.PickWeighted(cands, s.rng)
		}
	}
	return nil, false
}

// stretch maps e from the connector's room span onto the seam. Resizable
// structures scale along the axis; everything else keeps its size and is
// repositioned.
func (s *Synthesizer) stretch(e *scene.Entity, sm *seam, hb geom.Rect, scale float64) {
	if sm.horizontal {
		base := sm.low.Rect.Right()
		if !e.ResizeHorizontal {
			cx := base + int(float64(e.Rect.Center().X-hb.X)*scale)
			e.Rect.X = cx - e.Rect.W/2
			return
		}
		lo := base + int(float64(e.Rect.Left()-hb.X)*scale)
		hi := base + int(float64(e.Rect.Right()-hb.X)*scale)
		e.Rect.X, e.Rect.W = lo, max(hi-lo, s.cfg.MinStructureExtent)
		return
	}
	base := sm.low.Rect.Top()
	if !e.ResizeVertical {
		cy := base + int(float64(e.Rect.Center().Y-hb.Y)*scale)
		e.Rect.Y = cy - e.Rect.H/2
		return
	}
	lo := base + int(float64(e.Rect.Bottom()-hb.Y)*scale)
	hi := base + int(float64(e.Rect.Top()-hb.Y)*scale)
	e.Rect.Y, e.Rect.H = lo, max(hi-lo, s.cfg.MinStructureExtent)
}

// pathThrough chains the waypoints in the two seam gaps through the
// hallway. Long horizontal hallways get intermediate waypoints.
func (s *Synthesizer) pathThrough(sm *seam, h scene.Handle, hb geom.Rect) {
	start, ok := s.waypointAt(sm.thisGap)
	if !ok {
		s.logger.Printf("error: connect: no waypoint in the %v gap of %s", sm.child.ThisGap, sm.child.Template)
		return
	}
	end, ok := s.waypointAt(sm.prevGap)
	if !ok {
		s.logger.Printf("error: connect: no waypoint in the %v gap of %s", sm.child.ParentGap(), sm.parent.Template)
		return
	}
	if start.Pos.X > end.Pos.X {
		start, end = end, start
	}

	if sm.horizontal && sm.length > s.cfg.HallwayWaypointMinLength {
		prev := start.ID
		i := 0
		for x := sm.low.Rect.Right() + s.cfg.WaypointMargin; x < sm.high.Rect.Left()-s.cfg.WaypointMargin; x += s.cfg.WaypointSpacing {
			id := s.world.Spawn(scene.Entity{
				Kind:   scene.KindWaypoint,
				Module: h,
				Name:   fmt.Sprintf("wp_path_%d", i),
				Pos:    geom.Vec2{X: x, Y: hb.Bottom() + s.cfg.WaypointHeight},
			})
			s.world.Link(prev, id)
			prev = id
			i++
		}
		s.world.Link(prev, end.ID)
	} else {
		s.world.Link(start.ID, end.ID)
	}

	var closest *scene.Entity
	best := int64(s.cfg.WaypointLinkRadius) * int64(s.cfg.WaypointLinkRadius)
	for _, wp := range s.world.OfKind(scene.KindWaypoint) {
		if wp.ID == start.ID {
			continue
		}
		if d := wp.Pos.DistSq(start.Pos); d < best {
			closest, best = wp, d
		}
	}
	if closest != nil {
		s.world.Link(start.ID, closest.ID)
	}
}
