package mcts

import (
	"math"
	"strconv"
	"strings"
)

// Node is one decision in the search tree. The root has index -1 and no
// parent.
type Node struct {
	parent   *Node
	children []*Node
	visits   int
	total    float64
	index    int
	action   string

	hints []any
	info  any
}

func newNode(parent *Node, index int, action string) *Node {
	return &Node{parent: parent, index: index, action: action}
}

func (n *Node) addChild(action string) *Node {
	child := newNode(n, len(n.children), action)
	n.children = append(n.children, child)
	return child
}

func (n *Node) update(score float64) {
	n.visits++
	n.total += score
}

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in creation order.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// Index is the position of the node among its siblings.
func (n *Node) Index() int { return n.index }

// Action is the label given at expansion, empty when none was given.
func (n *Node) Action() string { return n.action }

// Hints returns the hints attached to the node in insertion order.
func (n *Node) Hints() []any { return append([]any(nil), n.hints...) }

// AddHint attaches a hint, e.g. feedback for the next visit of this branch.
func (n *Node) AddHint(h any) { n.hints = append(n.hints, h) }

// Info returns the caller owned value attached with SetInfo.
func (n *Node) Info() any { return n.info }

// SetInfo attaches an arbitrary value to the node.
func (n *Node) SetInfo(v any) { n.info = v }

// Visits returns the number of backpropagated scores.
func (n *Node) Visits() int { return n.visits }

// TotalScore returns the sum of backpropagated scores.
func (n *Node) TotalScore() float64 { return n.total }

// Mean returns the average score, 0 when unvisited.
func (n *Node) Mean() float64 {
	if n.visits == 0 {
		return 0
	}
	return n.total / float64(n.visits)
}

// UCB1 returns the upper confidence bound of the node for exploration
// constant c, 0 when unvisited.
func (n *Node) UCB1(c float64) float64 {
	if n.visits == 0 {
		return 0
	}
	parentVisits := 1
	if n.parent != nil && n.parent.visits > 0 {
		parentVisits = n.parent.visits
	}
	return n.Mean() + c*math.Sqrt(math.Log(float64(parentVisits))/float64(n.visits))
}

// IsLeafOrSinglePath reports whether no descendant has more than one child.
func (n *Node) IsLeafOrSinglePath() bool {
	for cur := n; ; cur = cur.children[0] {
		switch len(cur.children) {
		case 0:
			return true
		case 1:
		default:
			return false
		}
	}
}

// CountDescendants counts the node and all of its descendants.
func (n *Node) CountDescendants() int {
	count := 1
	for _, c := range n.children {
		count += c.CountDescendants()
	}
	return count
}

// chain returns the nodes from the first level down to n, excluding the root.
func (n *Node) chain() []*Node {
	var out []*Node
	for cur := n; cur.parent != nil; cur = cur.parent {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Path returns the dot separated child indices from the root, "" for the
// root itself.
func (n *Node) Path() string {
	chain := n.chain()
	parts := make([]string, len(chain))
	for i, c := range chain {
		parts[i] = strconv.Itoa(c.index)
	}
	return strings.Join(parts, ".")
}

// ActionPath is like Path but uses action labels where present.
func (n *Node) ActionPath() string {
	chain := n.chain()
	parts := make([]string, len(chain))
	for i, c := range chain {
		if c.action != "" {
			parts[i] = c.action
		} else {
			parts[i] = strconv.Itoa(c.index)
		}
	}
	return strings.Join(parts, ".")
}

// Depth returns the distance from the root.
func (n *Node) Depth() int {
	d := 0
	for cur := n; cur.parent != nil; cur = cur.parent {
		d++
	}
	return d
}
