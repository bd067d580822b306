// Package builder grows the attachment tree of an outpost from a sequence
// of module tags.
package builder

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/zyedidia/generic/mapset"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/layout"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/logic/mathx"
)

// ErrNoEntryModule means the catalog has no template for the initial tag.
// No retry can fix it.
var ErrNoEntryModule = errors.New("no entry modules found")

// ExhaustedError reports required tags the builder could not place. The
// partial layout is still returned alongside it.
type ExhaustedError struct {
	Missing []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("could not place required modules: %s", strings.Join(e.Missing, ", "))
}

type Options struct {
	LocationType   string
	MaxRetractions int
	// Dedupe drops repeated tags before building.
	Dedupe bool
}

type Builder struct {
	cat    *catalogs.Catalog
	rng    *mathx.Stream
	logger *log.Logger
	opts   Options
}

func New(cat *catalogs.Catalog, rng *mathx.Stream, logger *log.Logger, opts Options) *Builder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxRetractions <= 0 {
		opts.MaxRetractions = 10
	}
	return &Builder{cat: cat, rng: rng, logger: logger, opts: opts}
}

type triedKey struct {
	parent layout.NodeID
	gap    geom.GapPosition
}

// run holds the mutable state of one Build call.
type run struct {
	*Builder
	l           *layout.Layout
	pending     *layout.PendingQueue
	usage       map[*catalogs.ModuleTemplate]int
	retractions map[layout.NodeID]int
	tried       map[triedKey]mapset.Set[*catalogs.ModuleTemplate]
	warned      map[string]bool
}

// Build places seq[0] as the root and attaches the remaining tags. On
// partial failure the layout is returned with an *ExhaustedError.
func (b *Builder) Build(seq []string) (*layout.Layout, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("build: empty tag sequence")
	}
	r := &run{
		Builder:     b,
		l:           layout.New(),
		pending:     layout.NewPendingQueue(seq[1:]),
		usage:       map[*catalogs.ModuleTemplate]int{},
		retractions: map[layout.NodeID]int{},
		tried:       map[triedKey]mapset.Set[*catalogs.ModuleTemplate]{},
		warned:      map[string]bool{},
	}

	initial := seq[0]
	cands, tier := b.cat.FindCandidates(initial, b.opts.LocationType, nil)
	r.warnTier(initial, tier)
	entry, ok := catalogs.PickWeighted(cands, b.rng)
	if !ok {
		return nil, fmt.Errorf("%w (tag %q)", ErrNoEntryModule, initial)
	}
	root, err := r.l.AddRoot(entry, r.credit(entry, initial, false))
	if err != nil {
		return nil, err
	}
	r.usage[entry]++
	if b.opts.Dedupe {
		r.pending.Dedupe()
	}

	r.grow(root)

	if missing := r.pending.Required(); len(missing) > 0 {
		return r.l, &ExhaustedError{Missing: missing}
	}
	return r.l, nil
}

// grow drives a depth-first frontier. Each popped node gets one module per
// open gap; a node that can place nothing while required tags remain is a
// dead end, handled by attaching elsewhere or by replacing the node.
func (r *run) grow(root layout.NodeID) {
	stack := []layout.NodeID{root}
	for steps := 0; len(stack) > 0 && r.pending.Len() > 0; steps++ {
		if steps > 10000 {
			r.logger.Printf("warn: builder: step limit reached with %d tags pending", r.pending.Len())
			return
		}
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.l.Node(id) == nil {
			continue
		}

		placed := r.expand(id)
		if r.pending.Len() == 0 {
			return
		}
		if len(placed) == 0 && r.pending.HasRequired() {
			if placed = r.attachAnywhere(id); len(placed) == 0 {
				if repl, ok := r.replace(id); ok {
					placed = []layout.NodeID{repl}
				}
			}
		}
		for i := len(placed) - 1; i >= 0; i-- {
			stack = append(stack, placed[i])
		}
	}
}

// expand tries every open gap of id in random order.
func (r *run) expand(id layout.NodeID) []layout.NodeID {
	var placed []layout.NodeID
	gaps := append([]geom.GapPosition(nil), geom.AllGapPositions...)
	mathx.Shuffle(r.rng, gaps)
	for _, gap := range gaps {
		n := r.l.Node(id)
		if n.UsedGaps.Has(gap) || !n.Template.GapPositions.Has(gap) {
			continue
		}
		// Never grow below the entrance level.
		if gap == geom.GapBottom && n.Grid.Y <= 1 {
			continue
		}
		if child, ok := r.appendModule(id, gap, nil); ok {
			placed = append(placed, child)
		}
		if r.pending.Len() == 0 {
			break
		}
	}
	return placed
}

// attachAnywhere looks for an open gap on any other node.
func (r *run) attachAnywhere(except layout.NodeID) []layout.NodeID {
	for _, n := range r.l.Nodes() {
		if n.ID == except {
			continue
		}
		if placed := r.expand(n.ID); len(placed) > 0 {
			return placed
		}
	}
	return nil
}

// replace retracts a dead-end node that is its parent's only child and
// attaches a different template in its place. When nothing else fits the
// node is restored.
func (r *run) replace(id layout.NodeID) (layout.NodeID, bool) {
	n := r.l.Node(id)
	if n == nil || n.Parent == layout.NoNode || r.l.HasSiblings(id) || len(r.l.Children(id)) > 0 {
		return layout.NoNode, false
	}
	parent, gap := n.Parent, n.ParentGap()
	if r.retractions[parent] >= r.opts.MaxRetractions {
		return layout.NoNode, false
	}
	r.retractions[parent]++

	key := triedKey{parent, gap}
	if _, ok := r.tried[key]; !ok {
		r.tried[key] = mapset.New[*catalogs.ModuleTemplate]()
	}
	exclude := r.tried[key]
	exclude.Put(n.Template)

	refund, err := r.l.Retract(id)
	if err != nil {
		r.logger.Printf("error: builder: retract %s: %v", n.Template, err)
		return layout.NoNode, false
	}
	r.usage[n.Template]--
	r.pending.Push(refund...)

	child, ok := r.appendModule(parent, gap, &exclude)
	if ok {
		return child, true
	}
	if err := r.l.Restore(id); err != nil {
		r.logger.Printf("error: builder: restore %s: %v", n.Template, err)
		return layout.NoNode, false
	}
	r.usage[n.Template]++
	for _, t := range refund {
		r.pending.Remove(t)
	}
	return layout.NoNode, false
}

// appendModule attaches a template for the first pending tag that has one.
func (r *run) appendModule(parent layout.NodeID, parentGap geom.GapPosition, exclude *mapset.Set[*catalogs.ModuleTemplate]) (layout.NodeID, bool) {
	p := r.l.Node(parent)
	thisGap := parentGap.Opposing()
	for _, tag := range r.pending.Tags() {
		t := r.pickTemplate(p.Template, tag, thisGap, exclude)
		if t == nil {
			continue
		}
		id, err := r.l.Attach(parent, parentGap, t, r.credit(t, tag, true))
		if err != nil {
			r.logger.Printf("error: builder: %v", err)
			return layout.NoNode, false
		}
		r.usage[t]++
		return id, true
	}
	return layout.NoNode, false
}

// credit returns the tags a placed template fulfils: the tag it was chosen
// for and any other pending tag it also carries, which are removed from the
// queue. Filler is only credited when it was asked for.
func (r *run) credit(t *catalogs.ModuleTemplate, tag string, consume bool) []string {
	out := []string{tag}
	if consume {
		r.pending.Remove(tag)
	}
	for _, f := range t.Flags {
		if f == tag || !r.pending.Contains(f) {
			continue
		}
		if f != catalogs.FillerTag || catalogs.IsFiller(tag) {
			out = append(out, f)
			r.pending.Remove(f)
		}
	}
	return out
}

// pickTemplate prefers templates whose attach whitelist agrees with the
// neighbour both ways, then ignores the whitelist.
func (r *run) pickTemplate(prev *catalogs.ModuleTemplate, tag string, thisGap geom.GapPosition, exclude *mapset.Set[*catalogs.ModuleTemplate]) *catalogs.ModuleTemplate {
	usable := func(t *catalogs.ModuleTemplate) bool {
		if !t.GapPositions.Has(thisGap) {
			return false
		}
		if t.CanAttachToPrevious != geom.GapNone && !t.CanAttachToPrevious.Has(thisGap) {
			return false
		}
		if t.MaxCount > 0 && r.usage[t] >= t.MaxCount {
			return false
		}
		return exclude == nil || !exclude.Has(t)
	}
	strict := func(t *catalogs.ModuleTemplate) bool {
		return usable(t) && t.CanAttachTo(prev) && prev.CanAttachTo(t)
	}
	for _, filter := range []func(*catalogs.ModuleTemplate) bool{strict, usable} {
		cands, tier := r.cat.FindCandidates(tag, r.opts.LocationType, filter)
		if len(cands) == 0 {
			continue
		}
		r.warnTier(tag, tier)
		t, _ := catalogs.PickWeighted(cands, r.rng)
		return t
	}
	return nil
}

func (r *run) warnTier(tag string, tier catalogs.Tier) {
	if tier != catalogs.TierAny || r.warned[tag] {
		return
	}
	r.warned[tag] = true
	r.logger.Printf("warn: no %q module suited to location type %q, using any", tag, r.opts.LocationType)
}
