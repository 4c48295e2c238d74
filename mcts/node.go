package mcts

import (
	"fmt"
	"math"
	"math/rand"
)

// NoParent marks the root's parent slot.
const NoParent = -1

// node is one decision history in the search tree. Nodes live in the
// tree's arena and refer to each other by index, so the parent link is a
// plain back-reference with no ownership cycle.
type node struct {
	decisions []int
	parent    int
	children  []int
	visits    int
	valueSum  float64
}

// Config holds search parameters.
type Config struct {
	// C is the UCT exploration constant. Zero means the default sqrt(2).
	C float64
	// Rng drives rollout and forced-exploration choices. Seeding it makes
	// whole sessions reproducible.
	Rng *rand.Rand
}

// Tree is an arena of search nodes. Index 0 is always the root (empty
// decision history). Nodes are created lazily on expansion and persist for
// the whole session; statistics accumulate across rollouts.
type Tree struct {
	cfg   Config
	nodes []node
}

// NewTree creates a tree holding only the root.
func NewTree(cfg Config) *Tree {
	if cfg.C == 0 {
		cfg.C = math.Sqrt2
	}
	if cfg.Rng == nil {
		cfg.Rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Tree{
		cfg:   cfg,
		nodes: []node{{parent: NoParent}},
	}
}

// Root returns the root node id.
func (t *Tree) Root() int { return 0 }

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

// IsLeaf reports whether the node has no children.
func (t *Tree) IsLeaf(id int) bool { return len(t.nodes[id].children) == 0 }

// Parent returns the parent id, or NoParent for the root.
func (t *Tree) Parent(id int) int { return t.nodes[id].parent }

// Children returns the child ids of a node. The returned slice is owned by
// the tree.
func (t *Tree) Children(id int) []int { return t.nodes[id].children }

// Visits returns the visit count of a node.
func (t *Tree) Visits(id int) int { return t.nodes[id].visits }

// Value returns the accumulated reward of a node.
func (t *Tree) Value(id int) float64 { return t.nodes[id].valueSum }

// Decisions returns a copy of the decision history from the root.
func (t *Tree) Decisions(id int) []int {
	return append([]int(nil), t.nodes[id].decisions...)
}

// LastDecision returns the decision that produced this node. Calling it on
// the root is a programmer error.
func (t *Tree) LastDecision(id int) int {
	d := t.nodes[id].decisions
	if len(d) == 0 {
		panic("mcts: root has no last decision")
	}
	return d[len(d)-1]
}

// AddChild appends decision to id's history to form a new child and
// returns its id. Children must carry pairwise-distinct last decisions;
// a duplicate is a programmer error.
func (t *Tree) AddChild(id int, decision int) int {
	for _, c := range t.nodes[id].children {
		if t.LastDecision(c) == decision {
			panic(fmt.Sprintf("mcts: node %d already has a child for decision %d", id, decision))
		}
	}

	history := t.nodes[id].decisions
	child := node{
		decisions: append(append(make([]int, 0, len(history)+1), history...), decision),
		parent:    id,
	}
	childID := len(t.nodes)
	t.nodes = append(t.nodes, child)
	t.nodes[id].children = append(t.nodes[id].children, childID)
	return childID
}

// UCT scores a child for selection: average reward plus the exploration
// bonus C*sqrt(ln(parent visits)/visits). The selection policy exhausts
// untried children first, so this is never evaluated at zero visits.
func (t *Tree) UCT(id int) float64 {
	n := &t.nodes[id]
	if n.visits == 0 {
		panic(fmt.Sprintf("mcts: UCT on unvisited node %d", id))
	}
	exploit := n.valueSum / float64(n.visits)
	explore := t.cfg.C * math.Sqrt(math.Log(float64(t.nodes[n.parent].visits))/float64(n.visits))
	return exploit + explore
}

// Backpropagate adds reward and one visit to every node on the path from
// id up to the root.
func (t *Tree) Backpropagate(id int, reward float64) {
	for id != NoParent {
		t.nodes[id].visits++
		t.nodes[id].valueSum += reward
		id = t.nodes[id].parent
	}
}
