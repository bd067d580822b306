// Package selector turns a generation recipe into the ordered sequence of
// module tags the builder places.
package selector

import (
	"io"
	"log"
	"sort"
	"strings"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/mathx"
	"outpostforge.ai/internal/gen/recipes"
)

// Catalog is the part of the module catalog the selector consults.
type Catalog interface {
	HasTag(tag string) bool
	MaxCountFor(tag string) (total int, unlimited bool)
}

type Context struct {
	LocationType string
	Faction      string
}

// Select builds the tag sequence for r. The first element is always the
// recipe's initial tag. The result may be shorter than TotalModuleCount when
// faction gating or missing modules leave nothing to add.
func Select(r recipes.Recipe, cat Catalog, ctx Context, rng *mathx.Stream, logger *log.Logger) []string {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	total := r.TotalModuleCount
	initial := r.InitialTag()

	counts := map[string]int{initial: 1}
	seq := []string{initial}
	order := map[string]int{}
	missing := map[string]bool{}
	for _, mc := range r.ModuleCounts {
		tag := strings.ToLower(mc.Tag)
		if _, ok := order[tag]; !ok {
			order[tag] = mc.Order
		}
	}

	for len(seq) < total {
		added := false
		for _, mc := range r.ModuleCounts {
			if len(seq) >= total {
				break
			}
			tag := strings.ToLower(mc.Tag)
			if mc.RequiredFaction != "" && !strings.EqualFold(mc.RequiredFaction, ctx.Faction) {
				continue
			}
			if counts[tag] >= mc.Count {
				continue
			}
			if !cat.HasTag(tag) {
				if !missing[tag] {
					missing[tag] = true
					logger.Printf("error: recipe %s: no modules with the tag %q (location type %q)", r.ID, tag, ctx.LocationType)
				}
				continue
			}
			counts[tag]++
			seq = append(seq, tag)
			added = true
		}
		if !added {
			break
		}
	}

	seq = capByMaxCount(r.ID, seq, cat, logger)

	rest := seq[1:]
	mathx.Shuffle(rng, rest)
	sort.SliceStable(rest, func(i, j int) bool { return order[rest[i]] < order[rest[j]] })

	if r.AppendToReachTotalModuleCount {
		for len(seq) < total {
			// Filler goes strictly between the entrance and the last tag,
			// unless the entrance is all there is.
			if len(seq) < 2 {
				seq = append(seq, catalogs.FillerTag)
				continue
			}
			at := 1 + rng.Intn(len(seq)-1)
			seq = append(seq, "")
			copy(seq[at+1:], seq[at:])
			seq[at] = catalogs.FillerTag
		}
	}

	if total > 0 && len(seq) > total {
		logger.Printf("warn: recipe %s: %d module tags selected, trimming to %d", r.ID, len(seq), total)
		seq = seq[:total]
	}
	return seq
}

// capByMaxCount drops occurrences of a tag beyond what the catalog's
// templates allow in total. The initial tag is never dropped.
func capByMaxCount(recipeID string, seq []string, cat Catalog, logger *log.Logger) []string {
	used := map[string]int{}
	out := seq[:1]
	for _, tag := range seq[1:] {
		if catalogs.IsFiller(tag) {
			out = append(out, tag)
			continue
		}
		limit, unlimited := cat.MaxCountFor(tag)
		used[tag]++
		if seq[0] == tag {
			limit--
		}
		if !unlimited && used[tag] > limit {
			if used[tag] == limit+1 {
				logger.Printf("error: recipe %s: too many %q modules requested, the catalog allows %d", recipeID, tag, limit)
			}
			continue
		}
		out = append(out, tag)
	}
	return out
}
