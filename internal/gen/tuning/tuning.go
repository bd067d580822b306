package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// Attempts is the number of full generation attempts before falling back
	// to a pre-built outpost.
	Attempts       int `yaml:"attempts"`
	MaxRetractions int `yaml:"max_retractions"`

	Resolver  Resolver  `yaml:"resolver"`
	Connector Connector `yaml:"connector"`
}

type Resolver struct {
	Step            int `yaml:"step"`
	MaxMove         int `yaml:"max_move"`
	MaxPasses       int `yaml:"max_passes"`
	MaxFixesPerEdge int `yaml:"max_fixes_per_edge"`
	// AdjacentShrink is applied to the solid bounds of a direct parent/child
	// pair, RoomShrink to every room-bounds test.
	AdjacentShrink int `yaml:"adjacent_shrink"`
	RoomShrink     int `yaml:"room_shrink"`
	// GapEdgePermille is where, relative to the gap half-extent, the two
	// connection rays are cast.
	GapEdgePermille int `yaml:"gap_edge_permille"`
}

type Connector struct {
	MinTwoDoorHallway   int `yaml:"min_two_door_hallway"`
	MergeWithoutHallway int `yaml:"merge_without_hallway"`

	WaypointSpacing          int `yaml:"waypoint_spacing"`
	WaypointMargin           int `yaml:"waypoint_margin"`
	HallwayWaypointMinLength int `yaml:"hallway_waypoint_min_length"`
	WaypointHeight           int `yaml:"waypoint_height"`
	WaypointLinkRadius       int `yaml:"waypoint_link_radius"`
	MinStructureExtent       int `yaml:"min_structure_extent"`
	DefaultMaxWires          int `yaml:"default_max_wires"`
}

func Defaults() Tuning {
	return Tuning{
		Attempts:       5,
		MaxRetractions: 10,
		Resolver: Resolver{
			Step:            50,
			MaxMove:         2000,
			MaxPasses:       10,
			MaxFixesPerEdge: 10,
			AdjacentShrink:  16,
			RoomShrink:      32,
			GapEdgePermille: 900,
		},
		Connector: Connector{
			MinTwoDoorHallway:        32,
			MergeWithoutHallway:      1,
			WaypointSpacing:          100,
			WaypointMargin:           50,
			HallwayWaypointMinLength: 100,
			WaypointHeight:           110,
			WaypointLinkRadius:       30,
			MinStructureExtent:       16,
			DefaultMaxWires:          5,
		},
	}
}

// Load reads a tuning file. Fields left at zero take their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var in Tuning
	if err := yaml.Unmarshal(raw, &in); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.merge(in)
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	switch {
	case t.Attempts < 1:
		return fmt.Errorf("attempts must be >= 1, got %d", t.Attempts)
	case t.Resolver.Step <= 0 || t.Resolver.MaxMove < t.Resolver.Step:
		return fmt.Errorf("resolver step %d / max_move %d out of range", t.Resolver.Step, t.Resolver.MaxMove)
	case t.Resolver.GapEdgePermille > 1000:
		return fmt.Errorf("gap_edge_permille must be <= 1000, got %d", t.Resolver.GapEdgePermille)
	case t.Connector.MergeWithoutHallway > t.Connector.MinTwoDoorHallway:
		return fmt.Errorf("merge_without_hallway %d exceeds min_two_door_hallway %d",
			t.Connector.MergeWithoutHallway, t.Connector.MinTwoDoorHallway)
	case t.Connector.WaypointSpacing <= 0:
		return fmt.Errorf("waypoint_spacing must be > 0")
	}
	return nil
}

func (t *Tuning) merge(in Tuning) {
	set(&t.Attempts, in.Attempts)
	set(&t.MaxRetractions, in.MaxRetractions)

	r := &t.Resolver
	set(&r.Step, in.Resolver.Step)
	set(&r.MaxMove, in.Resolver.MaxMove)
	set(&r.MaxPasses, in.Resolver.MaxPasses)
	set(&r.MaxFixesPerEdge, in.Resolver.MaxFixesPerEdge)
	set(&r.AdjacentShrink, in.Resolver.AdjacentShrink)
	set(&r.RoomShrink, in.Resolver.RoomShrink)
	set(&r.GapEdgePermille, in.Resolver.GapEdgePermille)

	c := &t.Connector
	set(&c.MinTwoDoorHallway, in.Connector.MinTwoDoorHallway)
	set(&c.MergeWithoutHallway, in.Connector.MergeWithoutHallway)
	set(&c.WaypointSpacing, in.Connector.WaypointSpacing)
	set(&c.WaypointMargin, in.Connector.WaypointMargin)
	set(&c.HallwayWaypointMinLength, in.Connector.HallwayWaypointMinLength)
	set(&c.WaypointHeight, in.Connector.WaypointHeight)
	set(&c.WaypointLinkRadius, in.Connector.WaypointLinkRadius)
	set(&c.MinStructureExtent, in.Connector.MinStructureExtent)
	set(&c.DefaultMaxWires, in.Connector.DefaultMaxWires)
}

func set(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
