package scene

import (
	"outpostforge.ai/internal/gen/logic/geom"
)

type Op string

const (
	OpSpawn  Op = "spawn"
	OpRemove Op = "remove"
	OpUpdate Op = "update"
)

// Change is one replication record.
type Change struct {
	Seq    uint64    `json:"seq"`
	Op     Op        `json:"op"`
	Entity EntityID  `json:"entity"`
	Kind   Kind      `json:"kind"`
	Module Handle    `json:"module,omitempty"`
	Name   string    `json:"name,omitempty"`
	Rect   geom.Rect `json:"rect"`
	Pos    geom.Vec2 `json:"pos"`
	Locked bool      `json:"locked,omitempty"`
	Links  int       `json:"links,omitempty"`
}

// Mark is a position in the world's history that Rollback can return to.
type Mark struct {
	changes  int
	seq      uint64
	nextID   EntityID
	nextInst Handle
}

func (w *World) record(op Op, e *Entity) {
	w.seq++
	w.changes = append(w.changes, Change{
		Seq:    w.seq,
		Op:     op,
		Entity: e.ID,
		Kind:   e.Kind,
		Module: e.Module,
		Name:   e.Name,
		Rect:   e.Rect,
		Pos:    e.Pos,
		Locked: e.Locked,
		Links:  len(e.Links),
	})
}

func (w *World) Mark() Mark {
	return Mark{changes: len(w.changes), seq: w.seq, nextID: w.nextID, nextInst: w.nextInst}
}

// Rollback discards every entity, instance and change created after m,
// including the records produced while tearing them down. Edits made after
// m to entities that already existed at m are not undone.
func (w *World) Rollback(m Mark) {
	for h := range w.instances {
		if h >= m.nextInst {
			delete(w.instances, h)
		}
	}
	for id, e := range w.entities {
		if id >= m.nextID {
			delete(w.entities, id)
			continue
		}
		e.Links = dropNewer(e.Links, m.nextID)
		for i := range e.Connections {
			e.Connections[i].Wires = dropNewer(e.Connections[i].Wires, m.nextID)
		}
	}
	for _, in := range w.instances {
		in.Entities = dropNewer(in.Entities, m.nextID)
	}
	if m.changes < len(w.changes) {
		w.changes = w.changes[:m.changes]
	}
	w.seq = m.seq
	w.nextID = m.nextID
	w.nextInst = m.nextInst
}

func dropNewer(ids []EntityID, limit EntityID) []EntityID {
	out := ids[:0]
	for _, id := range ids {
		if id < limit {
			out = append(out, id)
		}
	}
	return out
}

// Changes returns the change log. The slice must not be modified.
func (w *World) Changes() []Change { return w.changes }

// ChangesSince returns the records after m.
func (w *World) ChangesSince(m Mark) []Change {
	if m.changes >= len(w.changes) {
		return nil
	}
	return w.changes[m.changes:]
}
