// Package catalogtest builds small in-memory module templates for tests.
package catalogtest

import (
	"testing"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/geom"
)

// GapDepth is how far a fixture gap reaches across its wall.
const GapDepth = 16

// Box returns a single-room module of size w x h exposing a door on every
// side in gaps. Each door has a waypoint linked to the room centre and a
// junction box with one power connection.
func Box(id string, w, h int, gaps geom.GapPosition, flags ...string) *catalogs.ModuleTemplate {
	m := &catalogs.ModuleTemplate{
		ID:         id,
		Flags:      flags,
		Commonness: 1,
		GapNames:   gaps.Names(),
		Hulls:      []catalogs.HullDef{{ID: "room", Rect: geom.Rect{X: 0, Y: 0, W: w, H: h}}},
		Structures: []catalogs.StructureDef{{ID: "shell", Rect: geom.Rect{X: 0, Y: 0, W: w, H: h}, Body: true}},
		Waypoints:  []catalogs.WaypointDef{{ID: "wp_center", Pos: geom.Vec2{X: w / 2, Y: 16}}},
	}
	for _, side := range geom.AllGapPositions {
		if !gaps.Has(side) {
			continue
		}
		name := side.String()
		r := gapRect(side, w, h)
		m.Gaps = append(m.Gaps, catalogs.GapDef{ID: "gap_" + name, Rect: r, Hulls: []string{"room"}})
		m.Doors = append(m.Doors, catalogs.DoorDef{ID: "door_" + name, Gap: "gap_" + name, Rect: r, BetweenModules: true})
		c := r.Center()
		m.Waypoints = append(m.Waypoints, catalogs.WaypointDef{
			ID: "wp_" + name, Pos: c, Gap: "gap_" + name, Door: "door_" + name, Links: []string{"wp_center"},
		})
		m.Junctions = append(m.Junctions, catalogs.JunctionDef{
			ID: "jb_" + name, Pos: c, Link: "gap_" + name,
			Connections: []catalogs.ConnectionDef{{Name: "power", Power: true, MaxWires: 5}},
		})
	}
	return m
}

func gapRect(side geom.GapPosition, w, h int) geom.Rect {
	gh := min(96, h-32)
	gw := min(96, w-32)
	switch side {
	case geom.GapRight:
		return geom.Rect{X: w - GapDepth/2, Y: 16, W: GapDepth, H: gh}
	case geom.GapLeft:
		return geom.Rect{X: -GapDepth / 2, Y: 16, W: GapDepth, H: gh}
	case geom.GapTop:
		return geom.Rect{X: w/2 - gw/2, Y: h - GapDepth/2, W: gw, H: GapDepth}
	default:
		return geom.Rect{X: w/2 - gw/2, Y: -GapDepth / 2, W: gw, H: GapDepth}
	}
}

// Hallway returns a stretchable connector tagged for its axis.
func Hallway(id string, horizontal bool) *catalogs.ModuleTemplate {
	if horizontal {
		m := Box(id, 200, 128, geom.GapLeft|geom.GapRight, "hallwayhorizontal")
		m.Structures[0].ResizeHorizontal = true
		return m
	}
	m := Box(id, 128, 200, geom.GapTop|geom.GapBottom, "hallwayvertical")
	m.Structures[0].ResizeVertical = true
	return m
}

// WithDevice adds a vent or oxygen generator at the room centre.
func WithDevice(m *catalogs.ModuleTemplate, id, kind string) *catalogs.ModuleTemplate {
	b := m.Hulls[0].Rect
	m.Devices = append(m.Devices, catalogs.DeviceDef{ID: id, Kind: kind, Rect: geom.Rect{X: b.W/2 - 8, Y: 0, W: 16, H: 16}})
	return m
}

// Catalog wraps catalogs.New and fails the test on error.
func Catalog(t testing.TB, modules []*catalogs.ModuleTemplate, prebuilt ...*catalogs.ModuleTemplate) *catalogs.Catalog {
	t.Helper()
	c, err := catalogs.New(modules, prebuilt)
	if err != nil {
		t.Fatalf("catalogs.New: %v", err)
	}
	return c
}

// Standard is a small but complete catalog: an airlock, quarters, a
// crossroads filler and both hallway orientations.
func Standard(t testing.TB) *catalogs.Catalog {
	t.Helper()
	return Catalog(t, []*catalogs.ModuleTemplate{
		Box("airlock", 300, 200, geom.GapRight, "airlock"),
		WithDevice(Box("quarters", 300, 200, geom.GapLeft|geom.GapRight|geom.GapTop, "quarters"), "vent_q", catalogs.DeviceVent),
		WithDevice(Box("crossroads", 240, 240, geom.GapLeft|geom.GapRight|geom.GapTop|geom.GapBottom, "none"), "o2", catalogs.DeviceOxygenGenerator),
		Box("shop", 260, 200, geom.GapLeft|geom.GapBottom, "shop", "store"),
		Hallway("hall_h", true),
		Hallway("hall_v", false),
	}, Box("prebuilt_small", 600, 200, geom.GapNone, "prebuilt"))
}
