// Package connect joins every parent/child seam of an instantiated layout:
// it merges short seams, stretches hallways across long ones, and carries
// the waypoint and wiring graphs over.
package connect

import (
	"fmt"
	"io"
	"log"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/logic/mathx"
	"outpostforge.ai/internal/gen/scene"
	"outpostforge.ai/internal/gen/tuning"
)

type Options struct {
	LocationType     string
	LockUnusedDoors  bool
	RemoveUnusedGaps bool
}

type Synthesizer struct {
	cat    *catalogs.Catalog
	world  *scene.World
	rng    *mathx.Stream
	cfg    tuning.Connector
	opts   Options
	logger *log.Logger
}

func New(cat *catalogs.Catalog, world *scene.World, rng *mathx.Stream, cfg tuning.Connector, opts Options, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Synthesizer{cat: cat, world: world, rng: rng, cfg: cfg, opts: opts, logger: logger}
}

// seam is one parent/child edge resolved to world entities.
type seam struct {
	child, parent *layout.Node
	thisGap       *scene.Entity
	prevGap       *scene.Entity
	horizontal    bool

	// For horizontal seams low/high are the left/right rooms, for vertical
	// ones the bottom/top rooms.
	low, high *scene.Entity
	length    int
}

// Connect synthesizes every edge not yet connected. Every node must already
// be instantiated at its final position. Edges connected by an earlier call
// are left alone.
func (s *Synthesizer) Connect(l *layout.Layout) error {
	for _, n := range l.Nodes() {
		if n.Parent == layout.NoNode || n.Seam {
			continue
		}
		sm, err := s.measure(n, l.Node(n.Parent))
		if err != nil {
			return err
		}
		s.wire(sm)
		s.clearBlockers(sm.child.Instance, sm.thisGap)
		s.clearBlockers(sm.parent.Instance, sm.prevGap)

		if sm.length <= s.cfg.MinTwoDoorHallway {
			s.merge(sm)
		}
		if sm.length > s.cfg.MergeWithoutHallway {
			h, err := s.hallway(sm)
			if err != nil {
				return err
			}
			n.Connector = h
		}
		n.Seam = true
	}
	return nil
}

func (s *Synthesizer) measure(n, p *layout.Node) (*seam, error) {
	if p == nil {
		return nil, fmt.Errorf("connect %s: parent %d: %w", n.Template, n.Parent, layout.ErrNotLive)
	}
	thisGap, err := s.outerGap(n, n.ThisGap)
	if err != nil {
		return nil, err
	}
	prevGap, err := s.outerGap(p, n.ParentGap())
	if err != nil {
		return nil, err
	}
	sm := &seam{child: n, parent: p, thisGap: thisGap, prevGap: prevGap, horizontal: n.ThisGap.IsHorizontal()}

	tc, pc := thisGap.Rect.Center(), prevGap.Rect.Center()
	lowGap, highGap := thisGap, prevGap
	if (sm.horizontal && tc.X > pc.X) || (!sm.horizontal && tc.Y > pc.Y) {
		lowGap, highGap = prevGap, thisGap
	}
	if sm.low, err = s.roomOf(lowGap, true); err != nil {
		return nil, err
	}
	if sm.high, err = s.roomOf(highGap, false); err != nil {
		return nil, err
	}
	if sm.horizontal {
		sm.length = sm.high.Rect.Left() - sm.low.Rect.Right()
	} else {
		sm.length = sm.high.Rect.Bottom() - sm.low.Rect.Top()
	}
	return sm, nil
}

func (s *Synthesizer) outerGap(n *layout.Node, side geom.GapPosition) (*scene.Entity, error) {
	g, ok := n.Template.OuterGap(side)
	if !ok {
		return nil, fmt.Errorf("connect: %s has no %v gap", n.Template, side)
	}
	e, ok := s.world.Lookup(n.Instance, g.ID)
	if !ok {
		return nil, fmt.Errorf("connect: %s gap %s not instantiated", n.Template, g.ID)
	}
	return e, nil
}

// roomOf returns the room a gap opens from. A gap between two rooms lists
// the lower one first; low picks that one.
func (s *Synthesizer) roomOf(gap *scene.Entity, low bool) (*scene.Entity, error) {
	if len(gap.Links) == 0 {
		return nil, fmt.Errorf("connect: gap %s of module %d opens into no room", gap.Name, gap.Module)
	}
	id := gap.Links[0]
	if !low {
		id = gap.Links[len(gap.Links)-1]
	}
	e, ok := s.world.Get(id)
	if !ok {
		return nil, fmt.Errorf("connect: gap %s room %d missing", gap.Name, id)
	}
	return e, nil
}

// clearBlockers removes solid structures flagged to go away when their
// door-less gap is put to use.
func (s *Synthesizer) clearBlockers(h scene.Handle, gap *scene.Entity) {
	if gap.Door != 0 {
		return
	}
	at := gap.Rect.Center()
	for _, e := range s.entitiesOf(h, scene.KindStructure) {
		if e.Body && !e.Platform && e.RemoveIfDoorInUse && e.Rect.Contains(at) {
			s.world.Remove(e.ID)
		}
	}
}

// merge drops one of the two doors of a short seam, preferring the side
// with no door, and carries the dropped side's waypoint links over. The
// rooms on both sides are extended to meet at the midpoint.
func (s *Synthesizer) merge(sm *seam) {
	drop, keep := sm.prevGap, sm.thisGap
	if sm.thisGap.Door == 0 {
		drop, keep = sm.thisGap, sm.prevGap
	}

	dropWP, okDrop := s.waypointAt(drop)
	keepWP, okKeep := s.waypointAt(keep)
	if okDrop && okKeep {
		for _, l := range append([]scene.EntityID(nil), dropWP.Links...) {
			if l != keepWP.ID {
				s.world.Link(keepWP.ID, l)
			}
		}
		s.world.Remove(dropWP.ID)
	}
	if drop.Door != 0 {
		s.world.Remove(drop.Door)
	}
	if sm.length <= s.cfg.MergeWithoutHallway {
		s.world.Remove(drop.ID)
	}

	if sm.horizontal {
		mid := (sm.low.Rect.Right() + sm.high.Rect.Left()) / 2
		sm.low.Rect.W = mid - sm.low.Rect.X
		sm.high.Rect.W = sm.high.Rect.Right() - mid
		sm.high.Rect.X = mid
	} else {
		mid := (sm.low.Rect.Top() + sm.high.Rect.Bottom()) / 2
		sm.low.Rect.H = mid - sm.low.Rect.Y
		sm.high.Rect.H = sm.high.Rect.Top() - mid
		sm.high.Rect.Y = mid
	}
	s.world.Touch(sm.low.ID)
	s.world.Touch(sm.high.ID)
}

// waypointAt finds the waypoint sitting in gap.
func (s *Synthesizer) waypointAt(gap *scene.Entity) (*scene.Entity, bool) {
	for _, e := range s.entitiesOf(gap.Module, scene.KindWaypoint) {
		if e.Gap == gap.ID {
			return e, true
		}
	}
	return nil, false
}

func (s *Synthesizer) entitiesOf(h scene.Handle, k scene.Kind) []*scene.Entity {
	in, ok := s.world.Instance(h)
	if !ok {
		return nil
	}
	var out []*scene.Entity
	for _, id := range in.Entities {
		if e, ok := s.world.Get(id); ok && e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
