package builder

import (
	"errors"
	"reflect"
	"testing"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/catalogs/catalogtest"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/logic/mathx"
)

func build(t *testing.T, cat *catalogs.Catalog, seed int64, seq ...string) (*layout.Layout, error) {
	t.Helper()
	return New(cat, mathx.NewStream(seed), nil, Options{}).Build(seq)
}

func TestBuild_ScenarioA(t *testing.T) {
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("airlock", 300, 200, geom.GapRight, "airlock"),
		catalogtest.Box("quarters", 300, 200, geom.GapLeft, "quarters"),
	})
	l, err := build(t, cat, 1, "airlock", "none", "quarters")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	nodes := l.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("nodes=%d", len(nodes))
	}
	root, _ := l.Root()
	if root.Template.ID != "airlock" || nodes[1].Parent != root.ID || nodes[1].Template.ID != "quarters" {
		t.Fatalf("unexpected tree: root=%s child=%s parent=%d", root.Template.ID, nodes[1].Template.ID, nodes[1].Parent)
	}
	if !nodes[1].HasFulfilled("quarters") {
		t.Fatalf("quarters not credited: %v", nodes[1].Fulfilled)
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuild_NoEntryModuleIsDistinct(t *testing.T) {
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("quarters", 300, 200, geom.GapLeft, "quarters"),
	})
	_, err := build(t, cat, 1, "airlock", "quarters")
	if !errors.Is(err, ErrNoEntryModule) {
		t.Fatalf("want ErrNoEntryModule, got %v", err)
	}
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		t.Fatalf("entry failure must not look retryable")
	}
}

func TestBuild_ReportsMissingTags(t *testing.T) {
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("airlock", 300, 200, geom.GapRight, "airlock"),
		catalogtest.Box("quarters", 300, 200, geom.GapLeft, "quarters"),
	})
	l, err := build(t, cat, 1, "airlock", "quarters", "quarters")
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("want ExhaustedError, got %v", err)
	}
	if !reflect.DeepEqual(ex.Missing, []string{"quarters"}) {
		t.Fatalf("missing=%v", ex.Missing)
	}
	if l == nil || l.Len() != 2 {
		t.Fatalf("partial layout not returned")
	}
}

func TestBuild_MaxCountLimitsPlacements(t *testing.T) {
	shop := catalogtest.Box("shop", 200, 200, geom.GapLeft|geom.GapRight, "shop")
	shop.MaxCount = 1
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("airlock", 300, 200, geom.GapRight, "airlock"),
		shop,
	})
	l, err := build(t, cat, 3, "airlock", "shop", "shop")
	var ex *ExhaustedError
	if !errors.As(err, &ex) || len(ex.Missing) != 1 {
		t.Fatalf("want one missing shop, got %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("nodes=%d", l.Len())
	}
}

func TestBuild_ReplacesDeadEnd(t *testing.T) {
	deadEnd := catalogtest.Box("quarters_end", 300, 200, geom.GapLeft, "quarters")
	deadEnd.Commonness = 100
	through := catalogtest.Box("quarters_through", 300, 200, geom.GapLeft|geom.GapRight, "quarters")
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("airlock", 300, 200, geom.GapRight, "airlock"),
		deadEnd,
		through,
		catalogtest.Box("shop", 200, 200, geom.GapLeft, "shop"),
	})
	for seed := int64(0); seed < 20; seed++ {
		l, err := build(t, cat, seed, "airlock", "quarters", "shop")
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if l.Len() != 3 {
			t.Fatalf("seed %d: nodes=%d", seed, l.Len())
		}
		if err := l.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	}
}

func TestBuild_TreeInvariantsAndDeterminism(t *testing.T) {
	cat := catalogtest.Standard(t)
	seq := []string{"airlock", "quarters", "none", "shop", "quarters", "none"}
	for seed := int64(0); seed < 30; seed++ {
		a, errA := build(t, cat, seed, seq...)
		b, errB := build(t, cat, seed, seq...)
		if (errA == nil) != (errB == nil) || a.Digest() != b.Digest() {
			t.Fatalf("seed %d: builds differ", seed)
		}
		if a.Len() > len(seq) {
			t.Fatalf("seed %d: %d nodes for %d tags", seed, a.Len(), len(seq))
		}
		if err := a.Validate(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		for _, n := range a.Nodes() {
			if n.Grid.Y < 0 {
				t.Fatalf("seed %d: %s grew below the entrance (grid %v)", seed, n.Template.ID, n.Grid)
			}
		}
	}
}

func TestBuild_DedupeDropsRepeats(t *testing.T) {
	cat := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		catalogtest.Box("airlock", 300, 200, geom.GapRight, "airlock"),
		catalogtest.Box("quarters", 300, 200, geom.GapLeft, "quarters"),
	})
	b := New(cat, mathx.NewStream(1), nil, Options{Dedupe: true})
	l, err := b.Build([]string{"airlock", "quarters", "quarters"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("nodes=%d", l.Len())
	}
}
