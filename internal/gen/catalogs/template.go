package catalogs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zyedidia/generic/mapset"

	"outpostforge.ai/internal/gen/logic/geom"
)

// FillerTag marks modules that fill space without serving a role.
const FillerTag = "none"

// IsFiller reports whether tag requests a filler module.
func IsFiller(tag string) bool {
	return tag == "" || strings.EqualFold(tag, FillerTag)
}

// ModuleTemplate is a pre-authored room module. It is immutable once the
// catalog that owns it has been built.
type ModuleTemplate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	Flags      []string `json:"module_flags"`
	MaxCount   int      `json:"max_count,omitempty"`
	Commonness float64  `json:"commonness"`

	GapNames             []string `json:"gap_positions"`
	AttachToPrevNames    []string `json:"can_attach_to_previous,omitempty"`
	AllowAttachTo        []string `json:"allow_attach_to,omitempty"`
	AllowedLocationTypes []string `json:"allowed_location_types,omitempty"`

	Hulls      []HullDef      `json:"hulls"`
	Structures []StructureDef `json:"structures,omitempty"`
	Gaps       []GapDef       `json:"gaps,omitempty"`
	Doors      []DoorDef      `json:"doors,omitempty"`
	Waypoints  []WaypointDef  `json:"waypoints,omitempty"`
	Junctions  []JunctionDef  `json:"junctions,omitempty"`
	Devices    []DeviceDef    `json:"devices,omitempty"`

	GapPositions        geom.GapPosition `json:"-"`
	CanAttachToPrevious geom.GapPosition `json:"-"`
	// Bounds covers the solid structures; HullBounds covers the rooms.
	Bounds     geom.Rect `json:"-"`
	HullBounds geom.Rect `json:"-"`

	tags      mapset.Set[string]
	locations mapset.Set[string]
	outer     map[geom.GapPosition]int
	doorOfGap map[string]int
}

type HullDef struct {
	ID   string    `json:"id"`
	Rect geom.Rect `json:"rect"`
}

type StructureDef struct {
	ID                string    `json:"id"`
	Rect              geom.Rect `json:"rect"`
	Body              bool      `json:"body,omitempty"`
	Platform          bool      `json:"platform,omitempty"`
	ResizeHorizontal  bool      `json:"resize_horizontal,omitempty"`
	ResizeVertical    bool      `json:"resize_vertical,omitempty"`
	RemoveIfDoorInUse bool      `json:"remove_if_door_in_use,omitempty"`
}

// GapDef is an opening in a wall. Gaps taller than they are wide sit in a
// vertical wall and connect horizontally.
type GapDef struct {
	ID    string    `json:"id"`
	Rect  geom.Rect `json:"rect"`
	Hulls []string  `json:"hulls,omitempty"`
}

func (g GapDef) Horizontal() bool { return g.Rect.W < g.Rect.H }

type DoorDef struct {
	ID             string    `json:"id"`
	Gap            string    `json:"gap"`
	Rect           geom.Rect `json:"rect"`
	BetweenModules bool      `json:"between_modules,omitempty"`
}

type WaypointDef struct {
	ID    string    `json:"id"`
	Pos   geom.Vec2 `json:"pos"`
	Gap   string    `json:"gap,omitempty"`
	Door  string    `json:"door,omitempty"`
	Links []string  `json:"links,omitempty"`
}

// JunctionDef is a wiring panel linked to a gap or to the door in it.
type JunctionDef struct {
	ID          string          `json:"id"`
	Pos         geom.Vec2       `json:"pos"`
	Link        string          `json:"link"`
	Connections []ConnectionDef `json:"connections"`
}

type ConnectionDef struct {
	Name     string `json:"name"`
	Power    bool   `json:"power,omitempty"`
	MaxWires int    `json:"max_wires,omitempty"`
}

const (
	DeviceVent            = "vent"
	DeviceOxygenGenerator = "oxygen_generator"
)

type DeviceDef struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Rect geom.Rect `json:"rect"`
}

func (t *ModuleTemplate) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// init normalizes the authored fields and derives the lookup state.
func (t *ModuleTemplate) init() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("module template: empty id")
	}
	var err error
	if t.GapPositions, err = geom.ParseGapPositions(t.GapNames); err != nil {
		return fmt.Errorf("module %s: %w", t.ID, err)
	}
	if t.CanAttachToPrevious, err = geom.ParseGapPositions(t.AttachToPrevNames); err != nil {
		return fmt.Errorf("module %s: can_attach_to_previous: %w", t.ID, err)
	}

	t.Flags = normalizeTags(t.Flags)
	t.AllowAttachTo = normalizeTags(t.AllowAttachTo)
	t.AllowedLocationTypes = normalizeTags(t.AllowedLocationTypes)
	t.tags = mapset.New[string]()
	for _, f := range t.Flags {
		t.tags.Put(f)
	}
	t.locations = mapset.New[string]()
	for _, l := range t.AllowedLocationTypes {
		t.locations.Put(l)
	}

	hulls := map[string]bool{}
	t.HullBounds = geom.Rect{}
	for _, h := range t.Hulls {
		hulls[h.ID] = true
		t.HullBounds = t.HullBounds.Union(h.Rect)
	}
	t.Bounds = geom.Rect{}
	for _, s := range t.Structures {
		if s.Body && !s.Platform {
			t.Bounds = t.Bounds.Union(s.Rect)
		}
	}
	if t.Bounds.Empty() {
		t.Bounds = t.HullBounds
	}

	gaps := map[string]bool{}
	for _, g := range t.Gaps {
		if gaps[g.ID] {
			return fmt.Errorf("module %s: duplicate gap %q", t.ID, g.ID)
		}
		gaps[g.ID] = true
		for _, h := range g.Hulls {
			if !hulls[h] {
				return fmt.Errorf("module %s: gap %s links unknown hull %q", t.ID, g.ID, h)
			}
		}
	}
	t.doorOfGap = map[string]int{}
	doors := map[string]bool{}
	for i, d := range t.Doors {
		if !gaps[d.Gap] {
			return fmt.Errorf("module %s: door %s references unknown gap %q", t.ID, d.ID, d.Gap)
		}
		t.doorOfGap[d.Gap] = i
		doors[d.ID] = true
	}
	for _, j := range t.Junctions {
		if !gaps[j.Link] && !doors[j.Link] {
			return fmt.Errorf("module %s: junction %s links unknown gap or door %q", t.ID, j.ID, j.Link)
		}
	}

	t.outer = map[geom.GapPosition]int{}
	for _, pos := range geom.AllGapPositions {
		if i := t.findOuterGap(pos); i >= 0 {
			t.outer[pos] = i
		}
	}
	return nil
}

// HasTag reports whether the module declares tag.
func (t *ModuleTemplate) HasTag(tag string) bool {
	return t.tags.Has(strings.ToLower(tag))
}

// IsFiller is true for modules with no role: untagged, or tagged only "none".
func (t *ModuleTemplate) IsFiller() bool {
	return len(t.Flags) == 0 || (len(t.Flags) == 1 && t.Flags[0] == FillerTag)
}

// Matches applies the tag rule used by every catalog query.
func (t *ModuleTemplate) Matches(tag string) bool {
	if IsFiller(tag) {
		return t.IsFiller()
	}
	return t.HasTag(tag)
}

// SuitedTo reports whether the module explicitly lists locationType.
func (t *ModuleTemplate) SuitedTo(locationType string) bool {
	return t.locations.Has(strings.ToLower(locationType))
}

func (t *ModuleTemplate) Unrestricted() bool { return t.locations.Size() == 0 }

// AttachesToAny is true when the attach whitelist is empty or only "any".
func (t *ModuleTemplate) AttachesToAny() bool {
	for _, s := range t.AllowAttachTo {
		if s != "any" {
			return false
		}
	}
	return true
}

// CanAttachTo applies t's whitelist to other's tags.
func (t *ModuleTemplate) CanAttachTo(other *ModuleTemplate) bool {
	if other == nil || t.AttachesToAny() {
		return true
	}
	for _, s := range t.AllowAttachTo {
		if other.tags.Has(s) {
			return true
		}
	}
	return false
}

// OuterGap returns the attachment gap on the given edge: the outermost gap
// on that side with no room further out across its span. Gaps whose door
// may not be used between modules are never returned.
func (t *ModuleTemplate) OuterGap(pos geom.GapPosition) (*GapDef, bool) {
	i, ok := t.outer[pos]
	if !ok {
		return nil, false
	}
	return &t.Gaps[i], true
}

// DoorOf returns the door sitting in the named gap.
func (t *ModuleTemplate) DoorOf(gapID string) (*DoorDef, bool) {
	i, ok := t.doorOfGap[gapID]
	if !ok {
		return nil, false
	}
	return &t.Doors[i], true
}

func (t *ModuleTemplate) findOuterGap(pos geom.GapPosition) int {
	sel := -1
	for i, g := range t.Gaps {
		if d, ok := t.DoorOf(g.ID); ok && !d.BetweenModules {
			continue
		}
		c := g.Rect.Center()
		switch pos {
		case geom.GapRight, geom.GapLeft:
			if !g.Horizontal() {
				continue
			}
			if sel >= 0 {
				sc := t.Gaps[sel].Rect.Center()
				if (pos == geom.GapRight && c.X <= sc.X) || (pos == geom.GapLeft && c.X >= sc.X) {
					continue
				}
			}
			if t.hullBeyond(g, pos) {
				continue
			}
		case geom.GapTop, geom.GapBottom:
			if g.Horizontal() {
				continue
			}
			if sel >= 0 {
				sc := t.Gaps[sel].Rect.Center()
				if (pos == geom.GapTop && c.Y <= sc.Y) || (pos == geom.GapBottom && c.Y >= sc.Y) {
					continue
				}
			}
			if t.hullBeyond(g, pos) {
				continue
			}
		}
		sel = i
	}
	return sel
}

func (t *ModuleTemplate) hullBeyond(g GapDef, pos geom.GapPosition) bool {
	c := g.Rect.Center()
	for _, h := range t.Hulls {
		hc := h.Rect.Center()
		switch pos {
		case geom.GapRight:
			if hc.X > c.X && g.Rect.Bottom() <= h.Rect.Top() && g.Rect.Top() >= h.Rect.Bottom() {
				return true
			}
		case geom.GapLeft:
			if hc.X < c.X && g.Rect.Bottom() <= h.Rect.Top() && g.Rect.Top() >= h.Rect.Bottom() {
				return true
			}
		case geom.GapTop:
			if hc.Y > c.Y && g.Rect.Right() >= h.Rect.Left() && g.Rect.Left() <= h.Rect.Right() {
				return true
			}
		case geom.GapBottom:
			if hc.Y < c.Y && g.Rect.Right() >= h.Rect.Left() && g.Rect.Left() <= h.Rect.Right() {
				return true
			}
		}
	}
	return false
}

func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func sortTemplates(ts []*ModuleTemplate) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}
