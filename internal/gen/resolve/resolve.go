// Package resolve pushes branches of a placed layout apart until no two
// modules overlap.
package resolve

import (
	"errors"
	"fmt"
	"io"
	"log"

	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/tuning"
)

// ErrUnresolved means no displacement within range removes an overlap.
var ErrUnresolved = errors.New("overlap unresolved")

type Resolver struct {
	cfg    tuning.Resolver
	logger *log.Logger
}

func New(cfg tuning.Resolver, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve displaces subtrees of l until a full pass over every parent/child
// edge finds no overlap. Every pair of modules is split across at least one
// edge, so a clean pass means the layout is overlap-free. When MaxPasses run
// out the whole layout is checked once more: any remaining overlap is
// ErrUnresolved, none means the last pass succeeded. Displacements are
// committed to l.
func (r *Resolver) Resolve(l *layout.Layout) error {
	for pass := 0; pass < r.cfg.MaxPasses; pass++ {
		found := false
		for _, n := range l.Nodes() {
			if n.Parent == layout.NoNode {
				continue
			}
			downstream := l.Subtree(n.ID)
			inSub := make(map[layout.NodeID]bool, len(downstream))
			for _, id := range downstream {
				inSub[id] = true
			}
			var others []layout.NodeID
			for _, o := range l.Nodes() {
				if !inSub[o.ID] {
					others = append(others, o.ID)
				}
			}

			for fix := 0; fix < r.cfg.MaxFixesPerEdge; fix++ {
				a, b, ok := r.findOverlap(l, downstream, others)
				if !ok {
					break
				}
				found = true
				mover, delta, ok := r.findSolution(l, downstream, a, b)
				if !ok {
					return fmt.Errorf("%w: %s and %s", ErrUnresolved, l.Node(a).Template, l.Node(b).Template)
				}
				l.Displace(mover, delta)
			}
		}
		if !found {
			return nil
		}
	}
	if a, b, ok := r.anyOverlap(l); ok {
		return fmt.Errorf("%w after %d passes: %s and %s", ErrUnresolved, r.cfg.MaxPasses, l.Node(a).Template, l.Node(b).Template)
	}
	return nil
}

// Overlaps reports whether two placed modules intersect. Solid bounds of a
// direct parent/child pair are shrunk by AdjacentShrink; room bounds are
// always shrunk by RoomShrink.
func (r *Resolver) Overlaps(l *layout.Layout, a, b layout.NodeID) bool {
	if a == b {
		return false
	}
	sa, sb := l.Bounds(a), l.Bounds(b)
	if adjacent(l, a, b) {
		sa = sa.Inflate(-r.cfg.AdjacentShrink, -r.cfg.AdjacentShrink)
		sb = sb.Inflate(-r.cfg.AdjacentShrink, -r.cfg.AdjacentShrink)
	}
	ra := l.RoomBounds(a).Inflate(-r.cfg.RoomShrink, -r.cfg.RoomShrink)
	rb := l.RoomBounds(b).Inflate(-r.cfg.RoomShrink, -r.cfg.RoomShrink)
	return sa.Intersects(sb) || ra.Intersects(rb) || ra.Intersects(sb) || rb.Intersects(sa)
}

func adjacent(l *layout.Layout, a, b layout.NodeID) bool {
	return l.Node(a).Parent == b || l.Node(b).Parent == a
}

func (r *Resolver) findOverlap(l *layout.Layout, set1, set2 []layout.NodeID) (layout.NodeID, layout.NodeID, bool) {
	for _, a := range set1 {
		for _, b := range set2 {
			if r.Overlaps(l, a, b) {
				return a, b, true
			}
		}
	}
	return layout.NoNode, layout.NoNode, false
}

func (r *Resolver) anyOverlap(l *layout.Layout) (layout.NodeID, layout.NodeID, bool) {
	nodes := l.Nodes()
	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			if r.Overlaps(l, a.ID, b.ID) {
				return a.ID, b.ID, true
			}
		}
	}
	return layout.NoNode, layout.NoNode, false
}

// findSolution tries moving each movable node's subtree along its own move
// direction and returns the smallest move that separates a and b without
// threading a connection through a foreign module.
func (r *Resolver) findSolution(l *layout.Layout, movable []layout.NodeID, a, b layout.NodeID) (layout.NodeID, geom.Vec2, bool) {
	best, bestDelta := layout.NoNode, geom.Vec2{}
	var bestLen int64 = -1
	maxSq := int64(r.cfg.MaxMove) * int64(r.cfg.MaxMove)
	for _, m := range movable {
		step := l.Node(m).ThisGap.MoveDir().Scale(r.cfg.Step)
		if step.IsZero() {
			continue
		}
		move := geom.Vec2{}
		for move.LengthSq() < maxSq {
			move = move.Add(step)
			if bestLen >= 0 && move.LengthSq() >= bestLen {
				break
			}
			l.Displace(m, move)
			clear := !r.Overlaps(l, a, b) && !r.ConnectionsBlocked(l)
			l.Displace(m, geom.Vec2{}.Sub(move))
			if clear {
				best, bestDelta, bestLen = m, move, move.LengthSq()
				break
			}
		}
	}
	return best, bestDelta, best != layout.NoNode
}

// ConnectionsBlocked reports whether the straight connection between any
// child and its parent passes through a third module. Two rays are cast,
// near either edge of the child's attachment gap.
func (r *Resolver) ConnectionsBlocked(l *layout.Layout) bool {
	nodes := l.Nodes()
	for _, child := range nodes {
		if child.Parent == layout.NoNode {
			continue
		}
		cg, ok1 := l.GapRect(child.ID, child.ThisGap)
		pg, ok2 := l.GapRect(child.Parent, child.ParentGap())
		if !ok1 || !ok2 {
			continue
		}
		for _, sign := range []int{-1, 1} {
			var edge geom.Vec2
			if child.ThisGap.IsHorizontal() {
				edge = geom.Vec2{Y: sign * cg.H / 2 * r.cfg.GapEdgePermille / 1000}
			} else {
				edge = geom.Vec2{X: sign * cg.W / 2 * r.cfg.GapEdgePermille / 1000}
			}
			p1 := cg.Center().Add(edge)
			p2 := pg.Center().Add(edge)
			for _, m := range nodes {
				if m.ID == child.ID || m.ID == child.Parent {
					continue
				}
				if geom.SegmentIntersectsRect(p1, p2, l.Bounds(m.ID)) {
					return true
				}
			}
		}
	}
	return false
}
