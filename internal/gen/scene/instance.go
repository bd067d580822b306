package scene

import (
	"sort"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/geom"
)

// Instantiate places a copy of t with its origin at offset. Every hull is
// tagged with tags.
func (w *World) Instantiate(t *catalogs.ModuleTemplate, offset geom.Vec2, tags []string) Handle {
	h := w.nextInst
	w.nextInst++
	in := &Instance{
		Handle:   h,
		Template: t,
		Offset:   offset,
		Tags:     append([]string(nil), tags...),
		byName:   map[string]EntityID{},
	}
	w.instances[h] = in

	for _, hd := range t.Hulls {
		w.Spawn(Entity{Kind: KindHull, Module: h, Name: hd.ID, Rect: hd.Rect.Translate(offset), Tags: in.Tags})
	}
	for _, sd := range t.Structures {
		w.Spawn(Entity{
			Kind: KindStructure, Module: h, Name: sd.ID, Rect: sd.Rect.Translate(offset),
			Body: sd.Body, Platform: sd.Platform,
			ResizeHorizontal: sd.ResizeHorizontal, ResizeVertical: sd.ResizeVertical,
			RemoveIfDoorInUse: sd.RemoveIfDoorInUse,
		})
	}
	for _, gd := range t.Gaps {
		g := Entity{Kind: KindGap, Module: h, Name: gd.ID, Rect: gd.Rect.Translate(offset), Horizontal: gd.Horizontal()}
		for _, hn := range gd.Hulls {
			g.Links = append(g.Links, in.byName[hn])
		}
		w.Spawn(g)
	}
	for _, dd := range t.Doors {
		gap := in.byName[dd.Gap]
		id := w.Spawn(Entity{Kind: KindDoor, Module: h, Name: dd.ID, Rect: dd.Rect.Translate(offset), Gap: gap, BetweenModules: dd.BetweenModules})
		if g, ok := w.entities[gap]; ok {
			g.Door = id
		}
	}
	for _, wd := range t.Waypoints {
		w.Spawn(Entity{Kind: KindWaypoint, Module: h, Name: wd.ID, Pos: wd.Pos.Add(offset), Gap: in.byName[wd.Gap], Door: in.byName[wd.Door]})
	}
	for _, wd := range t.Waypoints {
		for _, l := range wd.Links {
			if other, ok := in.byName[l]; ok {
				w.linkQuiet(in.byName[wd.ID], other)
			}
		}
	}
	for _, jd := range t.Junctions {
		j := Entity{Kind: KindJunction, Module: h, Name: jd.ID, Pos: jd.Pos.Add(offset), LinkedTo: in.byName[jd.Link]}
		for _, c := range jd.Connections {
			j.Connections = append(j.Connections, Connection{Name: c.Name, Power: c.Power, MaxWires: c.MaxWires})
		}
		w.Spawn(j)
	}
	for _, dv := range t.Devices {
		w.Spawn(Entity{Kind: KindDevice, Module: h, Name: dv.ID, Rect: dv.Rect.Translate(offset), DeviceKind: dv.Kind})
	}
	return h
}

// linkQuiet links waypoints while spawning; the spawn records already carry
// the links.
func (w *World) linkQuiet(a, b EntityID) {
	ea, okA := w.entities[a]
	eb, okB := w.entities[b]
	if !okA || !okB || a == b {
		return
	}
	if !contains(ea.Links, b) {
		ea.Links = append(ea.Links, b)
	}
	if !contains(eb.Links, a) {
		eb.Links = append(eb.Links, a)
	}
}

// Teardown removes every entity of an instance. Tearing down an unknown or
// already removed instance is a no-op.
func (w *World) Teardown(h Handle) {
	in, ok := w.instances[h]
	if !ok {
		return
	}
	ids := append([]EntityID(nil), in.Entities...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	for _, id := range ids {
		w.Remove(id)
	}
	delete(w.instances, h)
}

// Handles lists live instances in creation order.
func (w *World) Handles() []Handle {
	out := make([]Handle, 0, len(w.instances))
	for h := range w.instances {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Move translates every entity of an instance by delta.
func (w *World) Move(h Handle, delta geom.Vec2) {
	in, ok := w.instances[h]
	if !ok || delta.IsZero() {
		return
	}
	in.Offset = in.Offset.Add(delta)
	for _, id := range in.Entities {
		e := w.entities[id]
		e.Rect = e.Rect.Translate(delta)
		e.Pos = e.Pos.Add(delta)
		w.record(OpUpdate, e)
	}
}

// Clone deep-copies the world, including its change log.
func (w *World) Clone() *World {
	c := &World{
		entities:  make(map[EntityID]*Entity, len(w.entities)),
		instances: make(map[Handle]*Instance, len(w.instances)),
		nextID:    w.nextID,
		nextInst:  w.nextInst,
		changes:   append([]Change(nil), w.changes...),
		seq:       w.seq,
	}
	for id, e := range w.entities {
		cp := *e
		cp.Tags = append([]string(nil), e.Tags...)
		cp.Links = append([]EntityID(nil), e.Links...)
		cp.Connections = make([]Connection, len(e.Connections))
		for i, conn := range e.Connections {
			conn.Wires = append([]EntityID(nil), conn.Wires...)
			cp.Connections[i] = conn
		}
		c.entities[id] = &cp
	}
	for h, in := range w.instances {
		cp := *in
		cp.Tags = append([]string(nil), in.Tags...)
		cp.Entities = append([]EntityID(nil), in.Entities...)
		cp.byName = make(map[string]EntityID, len(in.byName))
		for k, v := range in.byName {
			cp.byName[k] = v
		}
		c.instances[h] = &cp
	}
	return c
}
