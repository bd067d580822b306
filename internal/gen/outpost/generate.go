package outpost

import (
	"errors"

	"outpostforge.ai/internal/gen/builder"
	"outpostforge.ai/internal/gen/connect"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/logic/mathx"
	"outpostforge.ai/internal/gen/recipes"
	"outpostforge.ai/internal/gen/resolve"
	"outpostforge.ai/internal/gen/scene"
	"outpostforge.ai/internal/gen/selector"
)

// Generate builds an outpost for req. The same request always yields the
// same outpost. Only ErrNoEntryModule, ErrNoFallback and ErrUnknownRecipe
// are returned; every other failure is logged and retried.
func (g *Generator) Generate(req Request) (*Outpost, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, err := g.resolveRecipe(req)
	if err != nil {
		return nil, err
	}
	rng := mathx.NewStream(req.Seed)
	world := scene.NewWorld()

	out := &Outpost{
		Recipe:       r.ID,
		Seed:         req.Seed,
		LocationType: req.LocationType,
		Visual:       r.Visual,
	}

	type partial struct {
		layout   *layout.Layout
		world    *scene.World
		sequence []string
		missing  []string
	}
	var best *partial

	attempts := max(g.tune.Attempts, 1)
	for i := 0; i < attempts; i++ {
		out.Attempts = i + 1
		mark := world.Mark()
		seq := g.selectSequence(r, req, rng)
		out.Sequence = seq
		l, missing, err := g.attempt(world, r, req, seq, rng, i == attempts-1)
		switch {
		case err == nil && len(missing) == 0:
			out.Valid = true
			return g.commit(out, l, world), nil
		case errors.Is(err, ErrNoEntryModule):
			g.discard(world, mark)
			g.logger.Printf("error: outpost %s: no modules tagged %q (location type %q)", r.ID, r.InitialTag(), req.LocationType)
			return nil, err
		case err == nil:
			g.logger.Printf("warn: outpost %s: attempt %d/%d is missing %v", r.ID, i+1, attempts, missing)
			if best == nil || len(missing) < len(best.missing) {
				best = &partial{layout: l.Clone(), world: world.Clone(), sequence: seq, missing: missing}
			}
		default:
			g.logger.Printf("warn: outpost %s: attempt %d/%d failed: %v", r.ID, i+1, attempts, err)
		}
		g.discard(world, mark)
	}

	if best != nil {
		g.logger.Printf("warn: outpost %s: accepting an invalid outpost, missing %v", r.ID, best.missing)
		out.Sequence = best.sequence
		out.Missing = best.missing
		return g.commit(out, best.layout, best.world), nil
	}
	return g.fallback(out, req, world, rng)
}

// selectSequence draws a fresh tag sequence; every attempt calls it, so a
// retry sees a new shuffle and filler position.
func (g *Generator) selectSequence(r recipes.Recipe, req Request, rng *mathx.Stream) []string {
	if req.OnlyEntrance {
		return []string{r.InitialTag()}
	}
	return selector.Select(r, g.cat, selector.Context{LocationType: req.LocationType, Faction: req.Faction}, rng, g.logger)
}

// attempt runs the pipeline once. A complete layout that lacks required
// tags is only returned when the recipe allows invalid outposts; missing
// then lists the tags.
func (g *Generator) attempt(world *scene.World, r recipes.Recipe, req Request, seq []string, rng *mathx.Stream, last bool) (*layout.Layout, []string, error) {
	b := builder.New(g.cat, rng, g.logger, builder.Options{
		LocationType:   req.LocationType,
		MaxRetractions: g.tune.MaxRetractions,
		Dedupe:         last,
	})
	l, err := b.Build(seq)
	var missing []string
	var ex *builder.ExhaustedError
	switch {
	case errors.As(err, &ex):
		if !r.AllowInvalidOutpost {
			return nil, nil, err
		}
		missing = ex.Missing
	case err != nil:
		return nil, nil, err
	}

	if err := l.Place(r.MinHallwayLength); err != nil {
		return nil, nil, err
	}
	for _, n := range l.Nodes() {
		n.Instance = world.Instantiate(n.Template, l.WorldOffset(n.ID), n.Template.Flags)
	}
	if err := resolve.New(g.tune.Resolver, g.logger).Resolve(l); err != nil {
		return nil, nil, err
	}
	for _, n := range l.Nodes() {
		if in, ok := world.Instance(n.Instance); ok {
			world.Move(n.Instance, l.WorldOffset(n.ID).Sub(in.Offset))
		}
	}

	syn := connect.New(g.cat, world, rng, g.tune.Connector, connect.Options{
		LocationType:     req.LocationType,
		LockUnusedDoors:  r.LockUnusedDoors,
		RemoveUnusedGaps: r.RemoveUnusedGaps,
	}, g.logger)
	if err := syn.Connect(l); err != nil {
		return nil, nil, err
	}
	syn.Finalize(l)
	return l, missing, nil
}

// discard tears down everything the attempt instantiated and truncates the
// change log back to mark, teardown records included.
func (g *Generator) discard(world *scene.World, mark scene.Mark) {
	for _, h := range world.Handles() {
		world.Teardown(h)
	}
	world.Rollback(mark)
}

func (g *Generator) fallback(out *Outpost, req Request, world *scene.World, rng *mathx.Stream) (*Outpost, error) {
	t, ok := g.cat.PickPrebuilt(req.LocationType, rng)
	if !ok {
		g.logger.Printf("error: outpost %s: generation failed after %d attempts and there is no pre-built outpost", out.Recipe, out.Attempts)
		return nil, ErrNoFallback
	}
	g.logger.Printf("warn: outpost %s: generation failed after %d attempts, using pre-built %s", out.Recipe, out.Attempts, t)

	l := layout.New()
	root, err := l.AddRoot(t, t.Flags)
	if err != nil {
		return nil, ErrNoFallback
	}
	l.Node(root).Instance = world.Instantiate(t, geom.Vec2{}, t.Flags)
	connect.New(g.cat, world, rng, g.tune.Connector, connect.Options{LocationType: req.LocationType}, g.logger).Finalize(l)

	out.Prebuilt = true
	out.Valid = true
	return g.commit(out, l, world), nil
}

func (g *Generator) commit(out *Outpost, l *layout.Layout, world *scene.World) *Outpost {
	out.Layout = l
	out.World = world
	out.Digest = l.Digest()
	if g.sink != nil {
		if err := g.sink.WriteChanges(world.Changes()); err != nil {
			g.logger.Printf("error: outpost %s: change sink: %v", out.Recipe, err)
		}
	}
	return out
}
