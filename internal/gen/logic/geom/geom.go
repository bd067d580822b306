// Package geom holds the integer geometry used by outpost layout.
//
// All coordinates are integers so that layouts are bit-identical across
// platforms. The Y axis points up; a Rect is anchored at its minimum corner.
package geom

import (
	"encoding/json"
	"fmt"
)

type Vec2 struct {
	X int
	Y int
}

func (v Vec2) Add(o Vec2) Vec2  { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2  { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k int) Vec2 { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) IsZero() bool     { return v.X == 0 && v.Y == 0 }

func (v Vec2) LengthSq() int64 {
	return int64(v.X)*int64(v.X) + int64(v.Y)*int64(v.Y)
}

func (v Vec2) DistSq(o Vec2) int64 { return v.Sub(o).LengthSq() }

func (v Vec2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{v.X, v.Y})
}

func (v *Vec2) UnmarshalJSON(b []byte) error {
	var a [2]int
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("vec2: %w", err)
	}
	v.X, v.Y = a[0], a[1]
	return nil
}

type Rect struct {
	X int
	Y int
	W int
	H int
}

func (r Rect) Left() int   { return r.X }
func (r Rect) Right() int  { return r.X + r.W }
func (r Rect) Bottom() int { return r.Y }
func (r Rect) Top() int    { return r.Y + r.H }
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

func (r Rect) Center() Vec2 {
	return Vec2{r.X + r.W/2, r.Y + r.H/2}
}

func (r Rect) Translate(v Vec2) Rect {
	return Rect{r.X + v.X, r.Y + v.Y, r.W, r.H}
}

// Inflate grows the rect by dx on the left and right and by dy on the
// bottom and top. Negative values shrink it.
func (r Rect) Inflate(dx, dy int) Rect {
	return Rect{r.X - dx, r.Y - dy, r.W + 2*dx, r.H + 2*dy}
}

// Intersects reports whether the interiors overlap. Rects that only share an
// edge do not intersect.
func (r Rect) Intersects(o Rect) bool {
	if r.Empty() || o.Empty() {
		return false
	}
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Top() && o.Y < r.Top()
}

// Contains is inclusive of the edges.
func (r Rect) Contains(p Vec2) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Top()
}

func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	minX, minY := min(r.X, o.X), min(r.Y, o.Y)
	maxX, maxY := max(r.Right(), o.Right()), max(r.Top(), o.Top())
	return Rect{minX, minY, maxX - minX, maxY - minY}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", r.X, r.Y, r.W, r.H)
}

func (r Rect) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X, r.Y, r.W, r.H})
}

func (r *Rect) UnmarshalJSON(b []byte) error {
	var a [4]int
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("rect: %w", err)
	}
	*r = Rect{a[0], a[1], a[2], a[3]}
	return nil
}

// SegmentIntersectsRect reports whether the closed segment a-b touches r.
func SegmentIntersectsRect(a, b Vec2, r Rect) bool {
	if r.Contains(a) || r.Contains(b) {
		return true
	}
	bl := Vec2{r.X, r.Y}
	br := Vec2{r.Right(), r.Y}
	tr := Vec2{r.Right(), r.Top()}
	tl := Vec2{r.X, r.Top()}
	return segmentsIntersect(a, b, bl, br) ||
		segmentsIntersect(a, b, br, tr) ||
		segmentsIntersect(a, b, tr, tl) ||
		segmentsIntersect(a, b, tl, bl)
}

func orient(a, b, c Vec2) int {
	v := int64(b.X-a.X)*int64(c.Y-a.Y) - int64(b.Y-a.Y)*int64(c.X-a.X)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func onSegment(a, b, p Vec2) bool {
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}

func segmentsIntersect(p1, p2, q1, q2 Vec2) bool {
	o1 := orient(p1, p2, q1)
	o2 := orient(p1, p2, q2)
	o3 := orient(q1, q2, p1)
	o4 := orient(q1, q2, p2)
	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, p2, q2):
		return true
	case o3 == 0 && onSegment(q1, q2, p1):
		return true
	case o4 == 0 && onSegment(q1, q2, p2):
		return true
	}
	return false
}
