package outpost

import (
	"outpostforge.ai/internal/gen/scene"
	"outpostforge.ai/internal/persistence/snapshot"
)

// Snapshot exports the outpost for persistence.
func (o *Outpost) Snapshot(catalogHash string) snapshot.OutpostV1 {
	snap := snapshot.OutpostV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			Recipe:  o.Recipe,
			Seed:    o.Seed,
			Digest:  o.Digest,
		},
		Recipe:       o.Recipe,
		Seed:         o.Seed,
		LocationType: o.LocationType,
		Sequence:     append([]string(nil), o.Sequence...),
		Attempts:     o.Attempts,
		Prebuilt:     o.Prebuilt,
		Valid:        o.Valid,
		Missing:      append([]string(nil), o.Missing...),
		CatalogHash:  catalogHash,
		Visual:       o.Visual,
	}
	for _, n := range o.Layout.Nodes() {
		m := snapshot.ModuleV1{
			Node:      int(n.ID),
			Template:  n.Template.ID,
			Parent:    int(n.Parent),
			Grid:      [2]int{n.Grid.X, n.Grid.Y},
			Fulfilled: append([]string(nil), n.Fulfilled...),
			Instance:  uint32(n.Instance),
			Connector: uint32(n.Connector),
		}
		if n.Parent >= 0 {
			m.ThisGap = n.ThisGap.String()
		}
		off := o.Layout.WorldOffset(n.ID)
		m.Offset = [2]int{off.X, off.Y}
		snap.Modules = append(snap.Modules, m)
	}
	for _, e := range o.World.Entities() {
		ev := snapshot.EntityV1{
			ID:         uint32(e.ID),
			Kind:       e.Kind.String(),
			Module:     uint32(e.Module),
			Name:       e.Name,
			Rect:       [4]int{e.Rect.X, e.Rect.Y, e.Rect.W, e.Rect.H},
			Pos:        [2]int{e.Pos.X, e.Pos.Y},
			Tags:       append([]string(nil), e.Tags...),
			Locked:     e.Locked,
			DeviceKind: e.DeviceKind,
		}
		for _, l := range e.Links {
			ev.Links = append(ev.Links, uint32(l))
		}
		for _, c := range e.Connections {
			ev.Wires += len(c.Wires)
		}
		snap.Entities = append(snap.Entities, ev)
	}
	return snap
}

// Count returns how many live entities of kind k the outpost has.
func (o *Outpost) Count(k scene.Kind) int { return len(o.World.OfKind(k)) }
