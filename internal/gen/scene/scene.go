// Package scene instantiates module templates into world entities and keeps
// the replication change log for them.
package scene

import (
	"fmt"
	"sort"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/geom"
)

type EntityID uint32

// Handle identifies one instantiated module. The zero Handle is "none".
type Handle uint32

type Kind uint8

const (
	KindHull Kind = iota + 1
	KindStructure
	KindGap
	KindDoor
	KindWaypoint
	KindJunction
	KindWire
	KindDevice
)

var kindNames = map[Kind]string{
	KindHull:      "hull",
	KindStructure: "structure",
	KindGap:       "gap",
	KindDoor:      "door",
	KindWaypoint:  "waypoint",
	KindJunction:  "junction",
	KindWire:      "wire",
	KindDevice:    "device",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for kk, s := range kindNames {
		if s == string(b) {
			*k = kk
			return nil
		}
	}
	return fmt.Errorf("unknown entity kind %q", b)
}

type Connection struct {
	Name     string
	Power    bool
	MaxWires int
	Wires    []EntityID
}

// Entity is one placed object. Fields that do not apply to a Kind stay zero.
type Entity struct {
	ID     EntityID
	Kind   Kind
	Module Handle
	Name   string
	Rect   geom.Rect
	Pos    geom.Vec2

	// Tags is set on hulls: the tags of the module they belong to.
	Tags []string

	// Links holds waypoint neighbours, the two junctions of a wire and the
	// hulls of a gap.
	Links []EntityID

	// Gap and Door cross-reference a door, its gap and its waypoint.
	Gap  EntityID
	Door EntityID

	Horizontal     bool
	BetweenModules bool
	Locked         bool

	// Structure flags.
	Body              bool
	Platform          bool
	ResizeHorizontal  bool
	ResizeVertical    bool
	RemoveIfDoorInUse bool

	// Junction wiring and the gap or door it belongs to.
	Connections []Connection
	LinkedTo    EntityID

	DeviceKind string
}

type Instance struct {
	Handle   Handle
	Template *catalogs.ModuleTemplate
	Offset   geom.Vec2
	Tags     []string
	Entities []EntityID

	byName map[string]EntityID
}

type World struct {
	entities  map[EntityID]*Entity
	instances map[Handle]*Instance
	nextID    EntityID
	nextInst  Handle

	changes []Change
	seq     uint64
}

func NewWorld() *World {
	return &World{
		entities:  map[EntityID]*Entity{},
		instances: map[Handle]*Instance{},
		nextID:    1,
		nextInst:  1,
	}
}

func (w *World) Get(id EntityID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

func (w *World) Instance(h Handle) (*Instance, bool) {
	in, ok := w.instances[h]
	return in, ok
}

// Lookup finds an entity of an instance by its template-local name.
func (w *World) Lookup(h Handle, name string) (*Entity, bool) {
	in, ok := w.instances[h]
	if !ok {
		return nil, false
	}
	id, ok := in.byName[name]
	if !ok {
		return nil, false
	}
	return w.Get(id)
}

func (w *World) Len() int { return len(w.entities) }

// Entities returns the live entities in id order.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OfKind returns live entities of kind k in id order.
func (w *World) OfKind(k Kind) []*Entity {
	var out []*Entity
	for _, e := range w.Entities() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Spawn adds e to the world and returns its new id. e.Module may be zero
// for entities that belong to no instance.
func (w *World) Spawn(e Entity) EntityID {
	e.ID = w.nextID
	w.nextID++
	ent := &e
	w.entities[e.ID] = ent
	if in, ok := w.instances[e.Module]; ok {
		in.Entities = append(in.Entities, e.ID)
		if e.Name != "" {
			if _, taken := in.byName[e.Name]; !taken {
				in.byName[e.Name] = e.ID
			}
		}
	}
	w.record(OpSpawn, ent)
	return e.ID
}

// Remove deletes an entity and every reference other entities hold to it.
// Removing a missing entity is a no-op.
func (w *World) Remove(id EntityID) {
	e, ok := w.entities[id]
	if !ok {
		return
	}
	for _, l := range e.Links {
		if o, ok := w.entities[l]; ok {
			o.Links = without(o.Links, id)
		}
	}
	for _, o := range w.entities {
		if o.Gap == id {
			o.Gap = 0
		}
		if o.Door == id {
			o.Door = 0
		}
		if o.LinkedTo == id {
			o.LinkedTo = 0
		}
		for i := range o.Connections {
			o.Connections[i].Wires = without(o.Connections[i].Wires, id)
		}
	}
	if in, ok := w.instances[e.Module]; ok {
		in.Entities = without(in.Entities, id)
		if in.byName[e.Name] == id {
			delete(in.byName, e.Name)
		}
	}
	delete(w.entities, id)
	w.record(OpRemove, e)
}

// Touch records that e was modified in place.
func (w *World) Touch(id EntityID) {
	if e, ok := w.entities[id]; ok {
		w.record(OpUpdate, e)
	}
}

// Link connects two waypoints both ways. Linking twice is a no-op.
func (w *World) Link(a, b EntityID) {
	if a == b {
		return
	}
	ea, okA := w.entities[a]
	eb, okB := w.entities[b]
	if !okA || !okB {
		return
	}
	changed := false
	if !contains(ea.Links, b) {
		ea.Links = append(ea.Links, b)
		changed = true
	}
	if !contains(eb.Links, a) {
		eb.Links = append(eb.Links, a)
		changed = true
	}
	if changed {
		w.record(OpUpdate, ea)
		w.record(OpUpdate, eb)
	}
}

func (w *World) Unlink(a, b EntityID) {
	ea, okA := w.entities[a]
	eb, okB := w.entities[b]
	if okA && contains(ea.Links, b) {
		ea.Links = without(ea.Links, b)
		w.record(OpUpdate, ea)
	}
	if okB && contains(eb.Links, a) {
		eb.Links = without(eb.Links, a)
		w.record(OpUpdate, eb)
	}
}

func contains(ids []EntityID, id EntityID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func without(ids []EntityID, id EntityID) []EntityID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
