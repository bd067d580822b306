package layout

import (
	"fmt"

	"outpostforge.ai/internal/gen/logic/geom"
)

// Place computes each node's offset from its parent so that the two
// attachment gaps face each other minHallway units apart.
func (l *Layout) Place(minHallway int) error {
	root, ok := l.Root()
	if !ok {
		return fmt.Errorf("place: empty layout")
	}
	for _, id := range l.Subtree(root.ID) {
		n := l.nodes[id]
		if n.Parent == NoNode {
			n.Offset = geom.Vec2{}
			continue
		}
		p := l.nodes[n.Parent]
		pg, ok := p.Template.OuterGap(n.ParentGap())
		if !ok {
			return fmt.Errorf("place: %s has no usable %v gap", p.Template, n.ParentGap())
		}
		tg, ok := n.Template.OuterGap(n.ThisGap)
		if !ok {
			return fmt.Errorf("place: %s has no usable %v gap", n.Template, n.ThisGap)
		}
		n.Offset = pg.Rect.Center().Sub(tg.Rect.Center()).Add(n.ThisGap.MoveDir().Scale(minHallway))
	}
	return nil
}

// WorldOffset is the sum of offsets and displacements from the root down
// to id.
func (l *Layout) WorldOffset(id NodeID) geom.Vec2 {
	var out geom.Vec2
	for n := l.Node(id); n != nil; n = l.Node(n.Parent) {
		out = out.Add(n.Offset).Add(n.Displacement)
	}
	return out
}

// Bounds is the node's solid extent in world space.
func (l *Layout) Bounds(id NodeID) geom.Rect {
	return l.nodes[id].Template.Bounds.Translate(l.WorldOffset(id))
}

// RoomBounds is the node's room extent in world space.
func (l *Layout) RoomBounds(id NodeID) geom.Rect {
	return l.nodes[id].Template.HullBounds.Translate(l.WorldOffset(id))
}

// GapRect returns the world rect of the node's attachment gap on side.
func (l *Layout) GapRect(id NodeID, side geom.GapPosition) (geom.Rect, bool) {
	n := l.Node(id)
	if n == nil {
		return geom.Rect{}, false
	}
	g, ok := n.Template.OuterGap(side)
	if !ok {
		return geom.Rect{}, false
	}
	return g.Rect.Translate(l.WorldOffset(id)), true
}

// Displace moves id and everything below it by delta.
func (l *Layout) Displace(id NodeID, delta geom.Vec2) {
	if n := l.Node(id); n != nil {
		n.Displacement = n.Displacement.Add(delta)
	}
}
