package catalogs_test

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/catalogs/catalogtest"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/logic/mathx"
)

func TestFindCandidates_PrefersSuitedThenUnrestricted(t *testing.T) {
	city := catalogtest.Box("quarters_city", 200, 200, geom.GapLeft, "quarters")
	city.AllowedLocationTypes = []string{"City"}
	mine := catalogtest.Box("quarters_mine", 200, 200, geom.GapLeft, "quarters")
	mine.AllowedLocationTypes = []string{"mine"}
	plain := catalogtest.Box("quarters_plain", 200, 200, geom.GapLeft, "quarters")
	c := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{city, mine, plain})

	cases := []struct {
		location string
		wantIDs  []string
		wantTier catalogs.Tier
	}{
		{"city", []string{"quarters_city"}, catalogs.TierSuited},
		{"outpost", []string{"quarters_plain"}, catalogs.TierUnrestricted},
		{"", []string{"quarters_plain"}, catalogs.TierUnrestricted},
	}
	for _, tc := range cases {
		got, tier := c.FindCandidates("quarters", tc.location, nil)
		if tier != tc.wantTier {
			t.Fatalf("%q: tier=%v want %v", tc.location, tier, tc.wantTier)
		}
		if len(got) != len(tc.wantIDs) || got[0].ID != tc.wantIDs[0] {
			t.Fatalf("%q: got %v", tc.location, ids(got))
		}
	}

	// With the unrestricted template filtered out only restricted ones remain.
	got, tier := c.FindCandidates("quarters", "outpost", func(m *catalogs.ModuleTemplate) bool { return m.ID != "quarters_plain" })
	if tier != catalogs.TierAny || len(got) != 2 {
		t.Fatalf("fallback: tier=%v got %v", tier, ids(got))
	}
}

func TestFindCandidates_MissIsEmpty(t *testing.T) {
	c := catalogtest.Standard(t)
	got, tier := c.FindCandidates("reactor", "city", nil)
	if len(got) != 0 || tier != catalogs.TierNone {
		t.Fatalf("expected miss, got %v (%v)", ids(got), tier)
	}
	if c.HasTag("reactor") {
		t.Fatalf("HasTag(reactor) should be false")
	}
}

func TestFindCandidates_FillerMatchesUntaggedAndNone(t *testing.T) {
	untagged := catalogtest.Box("blank", 100, 150, geom.GapLeft)
	c := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{
		untagged,
		catalogtest.Box("crossroads", 100, 150, geom.GapLeft, "none"),
		catalogtest.Box("quarters", 100, 150, geom.GapLeft, "quarters", "none"),
	})
	got, _ := c.FindCandidates(catalogs.FillerTag, "", nil)
	if strings.Join(ids(got), ",") != "blank,crossroads" {
		t.Fatalf("filler candidates: %v", ids(got))
	}
	if !c.HasTag("") || !c.HasTag("NONE") {
		t.Fatalf("filler should be available")
	}
}

func TestPickWeighted_DeterministicAndWeighted(t *testing.T) {
	rare := catalogtest.Box("rare", 100, 150, geom.GapLeft, "x")
	rare.Commonness = 1
	common := catalogtest.Box("common", 100, 150, geom.GapLeft, "x")
	common.Commonness = 9
	c := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{rare, common})
	cands, _ := c.FindCandidates("x", "", nil)

	counts := map[string]int{}
	a, b := mathx.NewStream(7), mathx.NewStream(7)
	for i := 0; i < 2000; i++ {
		pa, ok := catalogs.PickWeighted(cands, a)
		if !ok {
			t.Fatalf("pick failed")
		}
		pb, _ := catalogs.PickWeighted(cands, b)
		if pa != pb {
			t.Fatalf("draw %d differs between identical streams", i)
		}
		counts[pa.ID]++
	}
	if counts["common"] < 5*counts["rare"] {
		t.Fatalf("weights not honoured: %v", counts)
	}
	if _, ok := catalogs.PickWeighted(nil, a); ok {
		t.Fatalf("empty pick should report false")
	}
}

func TestOuterGap_PicksOutermostUsableGap(t *testing.T) {
	m := catalogtest.Box("double", 400, 200, geom.GapRight, "x")
	// An inner gap between two rooms of the same module.
	m.Hulls = append(m.Hulls, catalogs.HullDef{ID: "inner", Rect: geom.Rect{X: 0, Y: 0, W: 200, H: 200}})
	m.Gaps = append(m.Gaps, catalogs.GapDef{ID: "gap_inner", Rect: geom.Rect{X: 192, Y: 16, W: 16, H: 96}})
	// A right-most gap whose door may not be used between modules.
	m.Gaps = append(m.Gaps, catalogs.GapDef{ID: "gap_service", Rect: geom.Rect{X: 420, Y: 16, W: 16, H: 96}})
	m.Doors = append(m.Doors, catalogs.DoorDef{ID: "door_service", Gap: "gap_service", Rect: geom.Rect{X: 420, Y: 16, W: 16, H: 96}})
	c := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{m})

	got, _ := c.Get("double")
	g, ok := got.OuterGap(geom.GapRight)
	if !ok || g.ID != "gap_right" {
		t.Fatalf("outer right gap: %+v ok=%v", g, ok)
	}
	if _, ok := got.OuterGap(geom.GapLeft); ok {
		t.Fatalf("no left gap expected")
	}
}

func TestCanAttachTo(t *testing.T) {
	a := catalogtest.Box("a", 100, 150, geom.GapLeft, "airlock")
	b := catalogtest.Box("b", 100, 150, geom.GapLeft, "quarters")
	b.AllowAttachTo = []string{"Airlock"}
	anyMod := catalogtest.Box("c", 100, 150, geom.GapLeft, "shop")
	anyMod.AllowAttachTo = []string{"any"}
	catalogtest.Catalog(t, []*catalogs.ModuleTemplate{a, b, anyMod})

	if !b.CanAttachTo(a) || b.CanAttachTo(anyMod) {
		t.Fatalf("whitelist not applied")
	}
	if !anyMod.CanAttachTo(b) || !a.CanAttachTo(b) {
		t.Fatalf("empty or any whitelist must allow everything")
	}
}

func TestMaxCountFor(t *testing.T) {
	a := catalogtest.Box("a", 100, 150, geom.GapLeft, "shop")
	a.MaxCount = 1
	b := catalogtest.Box("b", 100, 150, geom.GapLeft, "shop")
	b.MaxCount = 2
	c := catalogtest.Catalog(t, []*catalogs.ModuleTemplate{a, b, catalogtest.Box("q", 100, 150, geom.GapLeft, "quarters")})
	if n, unlimited := c.MaxCountFor("shop"); n != 3 || unlimited {
		t.Fatalf("shop: n=%d unlimited=%v", n, unlimited)
	}
	if _, unlimited := c.MaxCountFor("quarters"); !unlimited {
		t.Fatalf("quarters should be unlimited")
	}
}

func TestNew_RejectsBadReferences(t *testing.T) {
	m := catalogtest.Box("bad", 100, 150, geom.GapLeft, "x")
	m.Doors[0].Gap = "missing"
	if _, err := catalogs.New([]*catalogs.ModuleTemplate{m}, nil); err == nil {
		t.Fatalf("expected error for door on unknown gap")
	}
	dupA := catalogtest.Box("dup", 100, 150, geom.GapLeft, "x")
	dupB := catalogtest.Box("dup", 100, 150, geom.GapLeft, "x")
	if _, err := catalogs.New([]*catalogs.ModuleTemplate{dupA, dupB}, nil); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestLoad_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "modules")
	if err := os.MkdirAll(modDir, 0o755); err != nil {
		t.Fatal(err)
	}
	good := `{"id":"airlock","module_flags":["airlock"],"commonness":1,"gap_positions":["right"],
	  "hulls":[{"id":"room","rect":[0,0,200,150]}],
	  "gaps":[{"id":"g","rect":[192,16,16,96],"hulls":["room"]}],
	  "doors":[{"id":"d","gap":"g","rect":[192,16,16,96],"between_modules":true}]}`
	bad := `{"id":"broken","gap_positions":["sideways"],"hulls":[]}`
	if err := os.WriteFile(filepath.Join(modDir, "airlock.json"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "broken.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	c, err := catalogs.Load(dir, log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Modules()) != 1 || c.Modules()[0].ID != "airlock" {
		t.Fatalf("modules: %v", ids(c.Modules()))
	}
	if len(c.Prebuilt()) != 0 {
		t.Fatalf("missing outposts dir should yield no prebuilt outposts")
	}
	if !strings.Contains(buf.String(), "broken.json") {
		t.Fatalf("skipped file not logged: %q", buf.String())
	}
	m := c.Modules()[0]
	if g, ok := m.OuterGap(geom.GapRight); !ok || g.ID != "g" {
		t.Fatalf("loaded gap lookup failed")
	}
	if c.Digest == "" {
		t.Fatalf("missing digest")
	}
}

func TestLoad_RepoConfigs(t *testing.T) {
	c, err := catalogs.Load("../../../configs", log.New(&bytes.Buffer{}, "", 0))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, tag := range []string{"airlock", "hallwayhorizontal", "hallwayvertical"} {
		if !c.HasTag(tag) {
			t.Fatalf("configs missing %s module", tag)
		}
	}
	if len(c.Prebuilt()) == 0 {
		t.Fatalf("configs missing prebuilt outpost")
	}
}

func ids(ms []*catalogs.ModuleTemplate) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
