// Package layout holds the attachment tree of placed modules.
//
// Nodes live in an arena and refer to each other by NodeID. A retracted
// node keeps its slot so ids stay stable for the rest of the attempt.
package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"outpostforge.ai/internal/gen/catalogs"
	"outpostforge.ai/internal/gen/logic/geom"
	"outpostforge.ai/internal/gen/scene"
)

type NodeID int

const NoNode NodeID = -1

type Node struct {
	ID       NodeID
	Template *catalogs.ModuleTemplate
	Parent   NodeID
	// ThisGap is the node's own edge used to attach to its parent.
	ThisGap  geom.GapPosition
	UsedGaps geom.GapPosition
	// Grid is a coarse coordinate: the root is (0,0) and each child steps one
	// cell along its move direction.
	Grid geom.Vec2
	// Offset is relative to the parent's origin; Displacement is added by
	// overlap resolution and carries over to the whole subtree.
	Offset       geom.Vec2
	Displacement geom.Vec2

	Fulfilled []string
	fulfilled mapset.Set[string]

	Instance scene.Handle
	// Seam is set once the connection to the parent has been synthesized.
	// Connector is the stretched hallway spawned for it, if any.
	Seam      bool
	Connector scene.Handle

	removed bool
}

// HasFulfilled reports whether the node was credited with tag.
func (n *Node) HasFulfilled(tag string) bool { return n.fulfilled.Has(tag) }

// ParentGap is the parent's edge this node hangs off.
func (n *Node) ParentGap() geom.GapPosition { return n.ThisGap.Opposing() }

type Layout struct {
	nodes []*Node
}

func New() *Layout { return &Layout{} }

var (
	ErrNotLive     = errors.New("node does not exist")
	ErrGapInUse    = errors.New("gap already used")
	ErrNoSuchGap   = errors.New("template has no gap on that side")
	ErrNotLeaf     = errors.New("node has children")
	ErrRootRetract = errors.New("root cannot be retracted")
)

// AddRoot places the first node. It fails if the layout already has one.
func (l *Layout) AddRoot(t *catalogs.ModuleTemplate, tags []string) (NodeID, error) {
	if _, ok := l.Root(); ok {
		return NoNode, errors.New("layout already has a root")
	}
	return l.add(&Node{Template: t, Parent: NoNode}, tags), nil
}

// Attach hangs a node with template t off parent's edge parentGap.
func (l *Layout) Attach(parent NodeID, parentGap geom.GapPosition, t *catalogs.ModuleTemplate, tags []string) (NodeID, error) {
	p := l.Node(parent)
	if p == nil {
		return NoNode, fmt.Errorf("attach to %d: %w", parent, ErrNotLive)
	}
	if !p.Template.GapPositions.Has(parentGap) {
		return NoNode, fmt.Errorf("attach to %s %v: %w", p.Template, parentGap, ErrNoSuchGap)
	}
	if p.UsedGaps.Has(parentGap) {
		return NoNode, fmt.Errorf("attach to %s %v: %w", p.Template, parentGap, ErrGapInUse)
	}
	this := parentGap.Opposing()
	if !t.GapPositions.Has(this) {
		return NoNode, fmt.Errorf("attach %s via %v: %w", t, this, ErrNoSuchGap)
	}
	p.UsedGaps |= parentGap
	return l.add(&Node{
		Template: t,
		Parent:   parent,
		ThisGap:  this,
		UsedGaps: this,
		Grid:     p.Grid.Add(this.MoveDir()),
	}, tags), nil
}

func (l *Layout) add(n *Node, tags []string) NodeID {
	n.ID = NodeID(len(l.nodes))
	n.fulfilled = mapset.New[string]()
	for _, t := range tags {
		n.Fulfilled = append(n.Fulfilled, t)
		n.fulfilled.Put(t)
	}
	l.nodes = append(l.nodes, n)
	return n.ID
}

// Retract removes a leaf and frees the parent's gap. It returns the tags
// the node had fulfilled.
func (l *Layout) Retract(id NodeID) ([]string, error) {
	n := l.Node(id)
	if n == nil {
		return nil, fmt.Errorf("retract %d: %w", id, ErrNotLive)
	}
	if n.Parent == NoNode {
		return nil, ErrRootRetract
	}
	if len(l.Children(id)) > 0 {
		return nil, fmt.Errorf("retract %s: %w", n.Template, ErrNotLeaf)
	}
	p := l.nodes[n.Parent]
	p.UsedGaps &^= n.ParentGap()
	n.removed = true
	return append([]string(nil), n.Fulfilled...), nil
}

// Restore brings back a retracted node whose parent gap is still free.
func (l *Layout) Restore(id NodeID) error {
	if id < 0 || int(id) >= len(l.nodes) || !l.nodes[id].removed {
		return fmt.Errorf("restore %d: not retracted", id)
	}
	n := l.nodes[id]
	p := l.Node(n.Parent)
	if p == nil {
		return fmt.Errorf("restore %d: parent %d: %w", id, n.Parent, ErrNotLive)
	}
	if p.UsedGaps.Has(n.ParentGap()) {
		return fmt.Errorf("restore %d: %w", id, ErrGapInUse)
	}
	p.UsedGaps |= n.ParentGap()
	n.removed = false
	return nil
}

// Node returns a live node, or nil.
func (l *Layout) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(l.nodes) || l.nodes[id].removed {
		return nil
	}
	return l.nodes[id]
}

func (l *Layout) Root() (*Node, bool) {
	for _, n := range l.nodes {
		if !n.removed && n.Parent == NoNode {
			return n, true
		}
	}
	return nil, false
}

// Nodes returns the live nodes in id order.
func (l *Layout) Nodes() []*Node {
	out := make([]*Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		if !n.removed {
			out = append(out, n)
		}
	}
	return out
}

func (l *Layout) Len() int { return len(l.Nodes()) }

func (l *Layout) Children(id NodeID) []NodeID {
	var out []NodeID
	for _, n := range l.nodes {
		if !n.removed && n.Parent == id {
			out = append(out, n.ID)
		}
	}
	return out
}

// HasSiblings reports whether another live node shares id's parent.
func (l *Layout) HasSiblings(id NodeID) bool {
	n := l.Node(id)
	if n == nil {
		return false
	}
	for _, o := range l.nodes {
		if !o.removed && o.ID != id && o.Parent == n.Parent {
			return true
		}
	}
	return false
}

// Subtree returns id and all its descendants in preorder.
func (l *Layout) Subtree(id NodeID) []NodeID {
	if l.Node(id) == nil {
		return nil
	}
	var out []NodeID
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		kids := l.Children(cur)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return out
}

// IsAncestor reports whether a is a strict ancestor of b.
func (l *Layout) IsAncestor(a, b NodeID) bool {
	n := l.Node(b)
	for steps := 0; n != nil && steps <= len(l.nodes); steps++ {
		if n.Parent == a {
			return true
		}
		n = l.Node(n.Parent)
	}
	return false
}

// Validate checks the tree invariants: one root, parents live, no cycles,
// and used gaps consistent with the templates and the attached children.
func (l *Layout) Validate() error {
	roots := 0
	for _, n := range l.Nodes() {
		if n.Parent == NoNode {
			roots++
		} else if l.Node(n.Parent) == nil {
			return fmt.Errorf("node %d: parent %d not live", n.ID, n.Parent)
		}
		if n.UsedGaps&^n.Template.GapPositions != 0 {
			return fmt.Errorf("node %d: used gaps %v outside template gaps %v", n.ID, n.UsedGaps, n.Template.GapPositions)
		}
		if n.Parent != NoNode && !n.UsedGaps.Has(n.ThisGap) {
			return fmt.Errorf("node %d: attach gap %v not marked used", n.ID, n.ThisGap)
		}
		var want geom.GapPosition
		if n.Parent != NoNode {
			want = n.ThisGap
		}
		for _, c := range l.Children(n.ID) {
			want |= l.nodes[c].ParentGap()
		}
		if want != n.UsedGaps {
			return fmt.Errorf("node %d: used gaps %v, attachments say %v", n.ID, n.UsedGaps, want)
		}
		seen := map[NodeID]bool{}
		for cur := n; cur != nil && cur.Parent != NoNode; cur = l.Node(cur.Parent) {
			if seen[cur.ID] {
				return fmt.Errorf("node %d: parent cycle", n.ID)
			}
			seen[cur.ID] = true
		}
	}
	if l.Len() > 0 && roots != 1 {
		return fmt.Errorf("%d roots", roots)
	}
	return nil
}

// Clone deep-copies the layout. Templates are shared.
func (l *Layout) Clone() *Layout {
	c := &Layout{nodes: make([]*Node, len(l.nodes))}
	for i, n := range l.nodes {
		cp := *n
		cp.Fulfilled = append([]string(nil), n.Fulfilled...)
		cp.fulfilled = mapset.New[string]()
		for _, t := range cp.Fulfilled {
			cp.fulfilled.Put(t)
		}
		c.nodes[i] = &cp
	}
	return c
}

// Digest hashes the placement decisions and final offsets.
func (l *Layout) Digest() string {
	h := sha256.New()
	for _, n := range l.Nodes() {
		w := l.WorldOffset(n.ID)
		fmt.Fprintf(h, "%d|%s|%d|%v|%d,%d|%d,%d|%v\n",
			n.ID, n.Template.ID, n.Parent, n.ThisGap, n.Grid.X, n.Grid.Y, w.X, w.Y, n.Fulfilled)
	}
	return hex.EncodeToString(h.Sum(nil))
}
