package geom

import (
	"fmt"
	"strings"
)

// GapPosition is a bitset over the four edges a module can expose an
// attachment point on.
type GapPosition uint8

const (
	GapNone   GapPosition = 0
	GapRight  GapPosition = 1 << 0
	GapLeft   GapPosition = 1 << 1
	GapTop    GapPosition = 1 << 2
	GapBottom GapPosition = 1 << 3
)

// AllGapPositions lists the single edges in their canonical order.
var AllGapPositions = []GapPosition{GapRight, GapLeft, GapTop, GapBottom}

// Has reports whether every bit of o is set. Has(GapNone) is false.
func (g GapPosition) Has(o GapPosition) bool {
	return o != GapNone && g&o == o
}

func (g GapPosition) Opposing() GapPosition {
	switch g {
	case GapRight:
		return GapLeft
	case GapLeft:
		return GapRight
	case GapTop:
		return GapBottom
	case GapBottom:
		return GapTop
	}
	return GapNone
}

// MoveDir is the direction a module moves away from its parent when it is
// attached through its own gap at g.
func (g GapPosition) MoveDir() Vec2 {
	switch g {
	case GapRight:
		return Vec2{-1, 0}
	case GapLeft:
		return Vec2{1, 0}
	case GapBottom:
		return Vec2{0, 1}
	case GapTop:
		return Vec2{0, -1}
	}
	return Vec2{}
}

// IsHorizontal is true for connections that run along the X axis.
func (g GapPosition) IsHorizontal() bool {
	return g == GapLeft || g == GapRight
}

func (g GapPosition) String() string {
	if g == GapNone {
		return "none"
	}
	var parts []string
	for _, p := range AllGapPositions {
		if g.Has(p) {
			parts = append(parts, gapNames[p])
		}
	}
	return strings.Join(parts, "|")
}

var gapNames = map[GapPosition]string{
	GapRight:  "right",
	GapLeft:   "left",
	GapTop:    "top",
	GapBottom: "bottom",
}

// ParseGapPositions folds edge names ("right", "left", "top", "bottom")
// into a bitset.
func ParseGapPositions(names []string) (GapPosition, error) {
	var out GapPosition
	for _, n := range names {
		found := false
		for p, name := range gapNames {
			if strings.EqualFold(strings.TrimSpace(n), name) {
				out |= p
				found = true
				break
			}
		}
		if !found {
			return GapNone, fmt.Errorf("unknown gap position %q", n)
		}
	}
	return out, nil
}

// Names is the inverse of ParseGapPositions, in canonical order.
func (g GapPosition) Names() []string {
	var out []string
	for _, p := range AllGapPositions {
		if g.Has(p) {
			out = append(out, gapNames[p])
		}
	}
	return out
}
