package geom

import "testing"

func TestRect_IntersectsIsStrict(t *testing.T) {
	a := Rect{0, 0, 100, 100}
	cases := []struct {
		name string
		b    Rect
		want bool
	}{
		{"overlap", Rect{50, 50, 100, 100}, true},
		{"shared edge", Rect{100, 0, 50, 100}, false},
		{"inside", Rect{10, 10, 10, 10}, true},
		{"apart", Rect{200, 200, 10, 10}, false},
		{"empty", Rect{10, 10, 0, 10}, false},
	}
	for _, c := range cases {
		if got := a.Intersects(c.b); got != c.want {
			t.Fatalf("%s: Intersects=%v want %v", c.name, got, c.want)
		}
		if got := c.b.Intersects(a); got != c.want {
			t.Fatalf("%s: not symmetric", c.name)
		}
	}
}

func TestRect_InflateShrinksBothSides(t *testing.T) {
	r := Rect{0, 0, 100, 60}.Inflate(-16, -16)
	if r != (Rect{16, 16, 68, 28}) {
		t.Fatalf("got %v", r)
	}
}

func TestRect_Union(t *testing.T) {
	u := Rect{0, 0, 10, 10}.Union(Rect{20, -5, 5, 5})
	if u != (Rect{0, -5, 25, 15}) {
		t.Fatalf("got %v", u)
	}
	if got := (Rect{}).Union(Rect{1, 1, 2, 2}); got != (Rect{1, 1, 2, 2}) {
		t.Fatalf("empty union: %v", got)
	}
}

func TestSegmentIntersectsRect(t *testing.T) {
	r := Rect{10, 10, 10, 10}
	if !SegmentIntersectsRect(Vec2{0, 15}, Vec2{30, 15}, r) {
		t.Fatalf("segment through rect not detected")
	}
	if SegmentIntersectsRect(Vec2{0, 0}, Vec2{30, 0}, r) {
		t.Fatalf("segment below rect reported")
	}
	if !SegmentIntersectsRect(Vec2{15, 15}, Vec2{16, 16}, r) {
		t.Fatalf("segment inside rect not detected")
	}
	if !SegmentIntersectsRect(Vec2{0, 20}, Vec2{30, 20}, r) {
		t.Fatalf("segment along top edge not detected")
	}
}

func TestGapPosition_OpposingAndMoveDir(t *testing.T) {
	for _, g := range AllGapPositions {
		if g.Opposing().Opposing() != g {
			t.Fatalf("%v: opposing not involutive", g)
		}
		if g.MoveDir().Add(g.Opposing().MoveDir()) != (Vec2{}) {
			t.Fatalf("%v: move dirs not opposite", g)
		}
	}
	if GapLeft.MoveDir() != (Vec2{1, 0}) {
		t.Fatalf("left gap must push the module right")
	}
	if GapTop.MoveDir() != (Vec2{0, -1}) {
		t.Fatalf("top gap must push the module down")
	}
}

func TestParseGapPositions(t *testing.T) {
	g, err := ParseGapPositions([]string{"Right", "top"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !g.Has(GapRight) || !g.Has(GapTop) || g.Has(GapLeft) {
		t.Fatalf("got %v", g)
	}
	if got := g.Names(); len(got) != 2 || got[0] != "right" || got[1] != "top" {
		t.Fatalf("names=%v", got)
	}
	if _, err := ParseGapPositions([]string{"sideways"}); err == nil {
		t.Fatalf("expected error")
	}
	if GapRight.Has(GapNone) {
		t.Fatalf("Has(GapNone) must be false")
	}
}
