// Package outpost drives the generation pipeline: tag selection, tree
// building, overlap resolution and seam synthesis, retried a bounded number
// of times before falling back to a pre-built outpost.
package outpost

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"outpostforge.ai/internal/gen/builder"
	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/scene"
	"outpostforge.ai/internal/gen/tuning"
)

var (
	// ErrNoEntryModule means the catalog cannot provide the recipe's first
	// module. Retrying cannot help.
	ErrNoEntryModule = builder.ErrNoEntryModule
	// ErrNoFallback means every attempt failed and the catalog has no
	// pre-built outpost.
	ErrNoFallback = errors.New("outpost generation failed and no pre-built outpost is available")
	// ErrUnknownRecipe is returned for a request naming no loaded recipe.
	ErrUnknownRecipe = errors.New("unknown recipe")
)

// ChangeSink receives the replication records of a committed outpost.
type ChangeSink interface {
	WriteChanges(changes []scene.Change) error
}

type Option func(*Generator)

// WithChangeSink forwards the change log of every committed outpost.
func WithChangeSink(s ChangeSink) Option {
	return func(g *Generator) { g.sink = s }
}

type Generator struct {
	cat     *catalogs.Catalog
	recipes *recipes.Set
	tune    tuning.Tuning
	logger  *log.Logger
	sink    ChangeSink

	// One generation at a time.
	mu sync.Mutex
}

func NewGenerator(cat *catalogs.Catalog, rs *recipes.Set, tune tuning.Tuning, logger *log.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	g := &Generator{cat: cat, recipes: rs, tune: tune, logger: logger}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Generator) Catalog() *catalogs.Catalog { return g.cat }

func (g *Generator) Recipes() *recipes.Set { return g.recipes }

type Request struct {
	Recipe       string
	Seed         int64
	LocationType string
	Faction      string
	// CriticallyRadiated switches to the recipe's ReplaceInRadiation recipe.
	CriticallyRadiated bool
	// OnlyEntrance generates just the recipe's first module.
	OnlyEntrance bool
}

// Outpost is a finished structure. World holds every placed entity and the
// change log that produced it.
type Outpost struct {
	Recipe       string
	Seed         int64
	LocationType string
	Sequence     []string
	Attempts     int

	// Prebuilt is set when generation fell back to a pre-built outpost.
	Prebuilt bool
	// Valid is false when an incomplete attempt was accepted; Missing then
	// lists the tags it lacks.
	Valid   bool
	Missing []string

	Layout *layout.Layout
	World  *scene.World
	Digest string
	Visual map[string]string
}

// Nodes is the number of placed modules.
func (o *Outpost) Nodes() int { return o.Layout.Len() }

func (g *Generator) resolveRecipe(req Request) (recipes.Recipe, error) {
	r, ok := g.recipes.Get(req.Recipe)
	if !ok {
		return recipes.Recipe{}, fmt.Errorf("%w %q", ErrUnknownRecipe, req.Recipe)
	}
	if req.CriticallyRadiated && r.ReplaceInRadiation != "" {
		alt, ok := g.recipes.Get(r.ReplaceInRadiation)
		if !ok {
			g.logger.Printf("error: outpost: recipe %s: radiation replacement %q not found", r.ID, r.ReplaceInRadiation)
			return r, nil
		}
		return alt, nil
	}
	return r, nil
}
