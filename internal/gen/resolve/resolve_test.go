package resolve

import (
	"errors"
	"testing"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/catalogs/catalogtest"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/tuning"
)

// branches builds a hub with a wide room hanging off its right edge and a
// tall room hanging off its top edge. At a hallway length of 190 their solid
// bounds overlap by exactly 10 units on each axis.
func branches(t *testing.T, hallway int) (*layout.Layout, layout.NodeID, layout.NodeID) {
	t.Helper()
	hub := catalogtest.Box("hub", 200, 200, geom.GapRight|geom.GapTop, "airlock")
	a := catalogtest.Box("a", 400, 400, geom.GapLeft, "quarters")
	b := catalogtest.Box("b", 600, 400, geom.GapBottom, "shop")
	catalogtest.Catalog(t, []*catalogs.ModuleTemplate{hub, a, b})

	l := layout.New()
	root, _ := l.AddRoot(hub, nil)
	na, err := l.Attach(root, geom.GapRight, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	nb, err := l.Attach(root, geom.GapTop, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Place(hallway); err != nil {
		t.Fatal(err)
	}
	return l, na, nb
}

func TestResolve_ScenarioC_OneStepClearsTenUnitOverlap(t *testing.T) {
	l, na, nb := branches(t, 190)
	r := New(tuning.Defaults().Resolver, nil)
	if !r.Overlaps(l, na, nb) {
		t.Fatalf("fixture should overlap: %v vs %v", l.Bounds(na), l.Bounds(nb))
	}
	if err := r.Resolve(l); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	moved := l.Node(na).Displacement.Add(l.Node(nb).Displacement)
	if moved.LengthSq() == 0 || moved.LengthSq() > 50*50 {
		t.Fatalf("displacement %v, want one 50-unit step", moved)
	}
	if r.Overlaps(l, na, nb) {
		t.Fatalf("still overlapping")
	}
}

func TestResolve_FailsWhenRangeExhausted(t *testing.T) {
	l, _, _ := branches(t, 0)
	cfg := tuning.Defaults().Resolver
	cfg.MaxMove = 100
	err := New(cfg, nil).Resolve(l)
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("want ErrUnresolved, got %v", err)
	}
}

func TestResolve_PassLimit(t *testing.T) {
	cases := []struct {
		name   string
		passes int
		fails  bool
	}{
		{"no passes leaves the overlap", 0, true},
		{"last pass clears it", 1, false},
		{"default", tuning.Defaults().Resolver.MaxPasses, false},
	}
	for _, tc := range cases {
		l, na, nb := branches(t, 190)
		cfg := tuning.Defaults().Resolver
		cfg.MaxPasses = tc.passes
		r := New(cfg, nil)
		err := r.Resolve(l)
		if tc.fails != errors.Is(err, ErrUnresolved) {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
		if !tc.fails && r.Overlaps(l, na, nb) {
			t.Fatalf("%s: resolved layout still overlaps", tc.name)
		}
	}
}

func TestOverlaps_ToleratesAdjacentSeam(t *testing.T) {
	for _, hallway := range []int{0, -10} {
		l, na, _ := branches(t, hallway)
		root, _ := l.Root()
		r := New(tuning.Defaults().Resolver, nil)
		if r.Overlaps(l, root.ID, na) {
			t.Fatalf("hallway %d: parent and child reported overlapping", hallway)
		}
	}
}

func TestOverlaps_NoResolutionNeeded(t *testing.T) {
	l, na, nb := branches(t, 400)
	r := New(tuning.Defaults().Resolver, nil)
	if err := r.Resolve(l); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !l.Node(na).Displacement.IsZero() || !l.Node(nb).Displacement.IsZero() {
		t.Fatalf("clean layout was moved")
	}
}

func TestConnectionsBlocked(t *testing.T) {
	hub := catalogtest.Box("hub", 200, 200, geom.GapRight|geom.GapTop, "airlock")
	a := catalogtest.Box("a", 200, 200, geom.GapLeft, "quarters")
	c := catalogtest.Box("c", 200, 200, geom.GapBottom, "shop")
	catalogtest.Catalog(t, []*catalogs.ModuleTemplate{hub, a, c})
	l := layout.New()
	root, _ := l.AddRoot(hub, nil)
	_, _ = l.Attach(root, geom.GapRight, a, nil)
	nc, _ := l.Attach(root, geom.GapTop, c, nil)
	if err := l.Place(600); err != nil {
		t.Fatal(err)
	}
	r := New(tuning.Defaults().Resolver, nil)
	if r.ConnectionsBlocked(l) {
		t.Fatalf("clean layout reported blocked")
	}
	// Park c across the hub-to-a corridor.
	l.Displace(nc, geom.Vec2{X: 300, Y: -800})
	if !r.ConnectionsBlocked(l) {
		t.Fatalf("corridor through c not detected")
	}
}
