// Package recipes holds the declarative outpost generation recipes.
package recipes

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"
)

// DefaultInitialTag is placed first when a recipe lists no entries.
const DefaultInitialTag = "airlock"

type ModuleCount struct {
	Tag             string `yaml:"tag"`
	Count           int    `yaml:"count"`
	Order           int    `yaml:"order"`
	RequiredFaction string `yaml:"required_faction,omitempty"`
}

type Recipe struct {
	ID                            string        `yaml:"id"`
	TotalModuleCount              int           `yaml:"total_module_count"`
	ModuleCounts                  []ModuleCount `yaml:"module_counts"`
	MinHallwayLength              int           `yaml:"min_hallway_length"`
	LockUnusedDoors               bool          `yaml:"lock_unused_doors"`
	RemoveUnusedGaps              bool          `yaml:"remove_unused_gaps"`
	AppendToReachTotalModuleCount bool          `yaml:"append_to_reach_total_module_count"`
	AllowInvalidOutpost           bool          `yaml:"allow_invalid_outpost"`
	// ReplaceInRadiation names the recipe used instead when the location is
	// critically irradiated.
	ReplaceInRadiation   string   `yaml:"replace_in_radiation,omitempty"`
	AllowedLocationTypes []string `yaml:"allowed_location_types,omitempty"`

	// Visual settings are carried through to the finished outpost untouched.
	Visual map[string]string `yaml:"visual,omitempty"`
}

// InitialTag is the tag of the module every outpost starts from.
func (r Recipe) InitialTag() string {
	if len(r.ModuleCounts) == 0 || strings.TrimSpace(r.ModuleCounts[0].Tag) == "" {
		return DefaultInitialTag
	}
	return strings.ToLower(r.ModuleCounts[0].Tag)
}

// Validate checks the recipe against the tags the module catalog provides.
// An unknown tag is reported with the closest known one.
func (r Recipe) Validate(knownTags []string) error {
	var errs []error
	if r.ID == "" {
		errs = append(errs, errors.New("missing id"))
	}
	if r.TotalModuleCount < 1 {
		errs = append(errs, fmt.Errorf("total_module_count must be >= 1, got %d", r.TotalModuleCount))
	}
	if r.MinHallwayLength < 0 {
		errs = append(errs, fmt.Errorf("min_hallway_length must be >= 0, got %d", r.MinHallwayLength))
	}
	known := map[string]bool{"none": true}
	for _, k := range knownTags {
		known[strings.ToLower(k)] = true
	}
	for i, mc := range r.ModuleCounts {
		tag := strings.ToLower(strings.TrimSpace(mc.Tag))
		if tag == "" {
			errs = append(errs, fmt.Errorf("module_counts[%d]: empty tag", i))
			continue
		}
		if mc.Count < 0 {
			errs = append(errs, fmt.Errorf("module_counts[%d] %s: negative count", i, tag))
		}
		if len(knownTags) > 0 && !known[tag] {
			if s := closest(tag, knownTags); s != "" {
				errs = append(errs, fmt.Errorf("module_counts[%d]: unknown tag %q (did you mean %q?)", i, tag, s))
			} else {
				errs = append(errs, fmt.Errorf("module_counts[%d]: unknown tag %q", i, tag))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("recipe %s: %w", r.ID, err)
	}
	return nil
}

func closest(tag string, known []string) string {
	best, bestD := "", -1
	for _, k := range known {
		d := levenshtein.ComputeDistance(tag, strings.ToLower(k))
		if bestD < 0 || d < bestD || (d == bestD && k < best) {
			best, bestD = k, d
		}
	}
	// Suggestions further than half the word away are noise.
	if bestD < 0 || bestD > (len(tag)+1)/2 {
		return ""
	}
	return best
}

type Set struct {
	Recipes []Recipe `yaml:"recipes"`

	byID map[string]int
}

func NewSet(rs []Recipe) (*Set, error) {
	s := &Set{Recipes: rs}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func Load(path string) (*Set, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Set
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("recipes.yaml: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, fmt.Errorf("recipes.yaml: %w", err)
	}
	return &s, nil
}

func (s *Set) index() error {
	s.byID = map[string]int{}
	for i, r := range s.Recipes {
		if r.ID == "" {
			return fmt.Errorf("recipe %d: missing id", i)
		}
		if _, dup := s.byID[r.ID]; dup {
			return fmt.Errorf("duplicate recipe id %q", r.ID)
		}
		s.byID[r.ID] = i
	}
	for _, r := range s.Recipes {
		if r.ReplaceInRadiation != "" {
			if _, ok := s.byID[r.ReplaceInRadiation]; !ok {
				return fmt.Errorf("recipe %s: replace_in_radiation names unknown recipe %q", r.ID, r.ReplaceInRadiation)
			}
		}
	}
	return nil
}

func (s *Set) Get(id string) (Recipe, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Recipe{}, false
	}
	return s.Recipes[i], true
}

func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.Recipes))
	for _, r := range s.Recipes {
		out = append(out, r.ID)
	}
	sort.Strings(out)
	return out
}

// ForLocation returns the first recipe that lists locationType, otherwise the
// first recipe with no location restriction.
func (s *Set) ForLocation(locationType string) (Recipe, bool) {
	var fallback *Recipe
	for i := range s.Recipes {
		r := &s.Recipes[i]
		if len(r.AllowedLocationTypes) == 0 {
			if fallback == nil {
				fallback = r
			}
			continue
		}
		for _, l := range r.AllowedLocationTypes {
			if strings.EqualFold(l, locationType) {
				return *r, true
			}
		}
	}
	if fallback == nil {
		return Recipe{}, false
	}
	return *fallback, true
}

// ValidateAll runs Validate on every recipe.
func (s *Set) ValidateAll(knownTags []string) error {
	var errs []error
	for _, r := range s.Recipes {
		if err := r.Validate(knownTags); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
