package connect

import (
	"fmt"

	"outpostforge.ai/internal/gen/scene"
)

// wire joins the junction boxes on both sides of a seam, connection i to
// connection i. A side with no free slot skips that wire.
func (s *Synthesizer) wire(sm *seam) {
	a, okA := s.junctionAt(sm.thisGap)
	b, okB := s.junctionAt(sm.prevGap)
	if !okA || !okB {
		return
	}
	for i := 0; i < len(a.Connections) && i < len(b.Connections); i++ {
		if !s.hasSlot(a.Connections[i]) {
			s.logger.Printf("warn: connect: no free %q connection on the junction box of %s", a.Connections[i].Name, sm.child.Template)
			continue
		}
		if !s.hasSlot(b.Connections[i]) {
			s.logger.Printf("warn: connect: no free %q connection on the junction box of %s", b.Connections[i].Name, sm.parent.Template)
			continue
		}
		kind := "signal"
		if a.Connections[i].Power {
			kind = "power"
		}
		id := s.world.Spawn(scene.Entity{
			Kind:   scene.KindWire,
			Module: sm.child.Instance,
			Name:   fmt.Sprintf("wire_%s_%d", kind, i),
			Pos:    a.Pos,
			Links:  []scene.EntityID{a.ID, b.ID},
		})
		a.Connections[i].Wires = append(a.Connections[i].Wires, id)
		b.Connections[i].Wires = append(b.Connections[i].Wires, id)
		s.world.Touch(a.ID)
		s.world.Touch(b.ID)
	}
}

func (s *Synthesizer) hasSlot(c scene.Connection) bool {
	limit := c.MaxWires
	if limit <= 0 {
		limit = s.cfg.DefaultMaxWires
	}
	return len(c.Wires) < limit
}

// junctionAt finds the junction box linked to gap or to the door in it.
func (s *Synthesizer) junctionAt(gap *scene.Entity) (*scene.Entity, bool) {
	for _, e := range s.entitiesOf(gap.Module, scene.KindJunction) {
		if e.LinkedTo == gap.ID || (gap.Door != 0 && e.LinkedTo == gap.Door) {
			return e, true
		}
	}
	return nil, false
}
