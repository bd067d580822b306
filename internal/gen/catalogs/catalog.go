// Package catalogs indexes module templates by role tag, location type and
// commonness, and holds the pre-built whole-outpost fallbacks.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/zyedidia/generic/mapset"

	"outpostforge.ai/internal/gen/logic/mathx"
)

// Tier says how narrow the search that produced a candidate set was.
type Tier int

const (
	TierNone Tier = iota
	TierSuited
	TierUnrestricted
	TierAny
)

func (t Tier) String() string {
	switch t {
	case TierSuited:
		return "suited"
	case TierUnrestricted:
		return "unrestricted"
	case TierAny:
		return "any"
	}
	return "none"
}

type Catalog struct {
	modules  []*ModuleTemplate
	byID     map[string]*ModuleTemplate
	prebuilt []*ModuleTemplate
	tags     mapset.Set[string]

	Digest string
}

// New builds a catalog from in-memory templates. Templates are initialized
// in place and must not be mutated afterwards.
func New(modules []*ModuleTemplate, prebuilt []*ModuleTemplate) (*Catalog, error) {
	c := &Catalog{
		byID: map[string]*ModuleTemplate{},
		tags: mapset.New[string](),
	}
	for _, m := range modules {
		if err := m.init(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		c.byID[m.ID] = m
		c.modules = append(c.modules, m)
		for _, f := range m.Flags {
			c.tags.Put(f)
		}
	}
	seen := map[string]bool{}
	for _, p := range prebuilt {
		if err := p.init(); err != nil {
			return nil, fmt.Errorf("prebuilt: %w", err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate prebuilt outpost id %q", p.ID)
		}
		seen[p.ID] = true
		c.prebuilt = append(c.prebuilt, p)
	}
	sortTemplates(c.modules)
	sortTemplates(c.prebuilt)
	c.Digest = c.digest()
	return c, nil
}

func (c *Catalog) Modules() []*ModuleTemplate { return c.modules }

func (c *Catalog) Prebuilt() []*ModuleTemplate { return c.prebuilt }

func (c *Catalog) Get(id string) (*ModuleTemplate, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// HasTag reports whether any module carries tag. Filler always exists as a
// request even when no template matches it.
func (c *Catalog) HasTag(tag string) bool {
	if IsFiller(tag) {
		for _, m := range c.modules {
			if m.IsFiller() {
				return true
			}
		}
		return false
	}
	return c.tags.Has(strings.ToLower(tag))
}

// Tags lists every module tag in the catalog, sorted.
func (c *Catalog) Tags() []string {
	out := make([]string, 0, c.tags.Size())
	c.tags.Each(func(t string) { out = append(out, t) })
	sort.Strings(out)
	return out
}

// MaxCountFor sums MaxCount over the templates carrying tag. unlimited is
// true when any of them has no cap.
func (c *Catalog) MaxCountFor(tag string) (total int, unlimited bool) {
	for _, m := range c.modules {
		if !m.Matches(tag) {
			continue
		}
		if m.MaxCount <= 0 {
			return 0, true
		}
		total += m.MaxCount
	}
	return total, false
}

// FindCandidates returns the templates matching tag and filter, preferring
// those suited to locationType, then those with no location restriction,
// then any. A miss is an empty slice with TierNone. Results are ordered by
// template id.
func (c *Catalog) FindCandidates(tag, locationType string, filter func(*ModuleTemplate) bool) ([]*ModuleTemplate, Tier) {
	var suited, unrestricted, anywhere []*ModuleTemplate
	for _, m := range c.modules {
		if !m.Matches(tag) {
			continue
		}
		if filter != nil && !filter(m) {
			continue
		}
		anywhere = append(anywhere, m)
		switch {
		case locationType != "" && m.SuitedTo(locationType):
			suited = append(suited, m)
		case m.Unrestricted():
			unrestricted = append(unrestricted, m)
		}
	}
	switch {
	case len(suited) > 0:
		return suited, TierSuited
	case len(unrestricted) > 0:
		return unrestricted, TierUnrestricted
	case len(anywhere) > 0:
		return anywhere, TierAny
	}
	return nil, TierNone
}

// PickWeighted selects one template with Commonness as the weight.
func PickWeighted(candidates []*ModuleTemplate, rng *mathx.Stream) (*ModuleTemplate, bool) {
	return mathx.PickWeighted(rng, candidates, func(m *ModuleTemplate) float64 { return m.Commonness })
}

// PickPrebuilt chooses a fallback outpost, preferring ones suited to the
// location type.
func (c *Catalog) PickPrebuilt(locationType string, rng *mathx.Stream) (*ModuleTemplate, bool) {
	var suited, rest []*ModuleTemplate
	for _, p := range c.prebuilt {
		if p.SuitedTo(locationType) {
			suited = append(suited, p)
		} else if p.Unrestricted() {
			rest = append(rest, p)
		}
	}
	if len(suited) == 0 {
		suited = rest
	}
	if len(suited) == 0 {
		suited = c.prebuilt
	}
	return PickWeighted(suited, rng)
}

func (c *Catalog) digest() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, group := range [][]*ModuleTemplate{c.modules, c.prebuilt} {
		for _, m := range group {
			_ = enc.Encode(m)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
