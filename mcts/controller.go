package mcts

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/hupe1980/llmflow/logging"
)

var (
	// ErrFullyExpanded is returned when every action has been tried at the
	// current node and no child can be selected.
	ErrFullyExpanded = errors.New("mcts: fully expanded but no child selected")

	// ErrParentMismatch signals a corrupted tree where the chosen node is
	// not a child of the current node.
	ErrParentMismatch = errors.New("mcts: parent mismatch")
)

// Options configures a Controller.
type Options struct {
	// ExplorationConstant weights exploration in UCB1. Defaults to 1.
	ExplorationConstant float64

	// Rand returns uniform numbers in [0,1). Defaults to a generator seeded
	// from the exploration constant, so runs are reproducible.
	Rand func() float64

	// NewChildScore is the normalized score of an untried child given the
	// number of existing children. Defaults to 2/(n+1).
	NewChildScore func(n int) float64

	// ExpansionProbability is the chance of branching off a single path
	// node. Defaults to 1/CountDescendants.
	ExpansionProbability func(n *Node) float64

	// Logger receives debug events. Defaults to NoOp.
	Logger logging.Logger
}

// Controller runs the search. It keeps the tree and a cursor (the current
// node) that advances with every Choose until Reset.
type Controller struct {
	root       *Node
	current    *Node
	numExpands int
	opts       Options
	logger     logging.Logger
}

// New creates a Controller.
func New(optFns ...func(o *Options)) *Controller {
	opts := Options{ExplorationConstant: 1}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Rand == nil {
		seed := math.Float64bits(opts.ExplorationConstant)
		rng := rand.New(rand.NewPCG(seed, seed))
		opts.Rand = rng.Float64
	}
	if opts.NewChildScore == nil {
		opts.NewChildScore = func(n int) float64 { return 2 / float64(n+1) }
	}
	if opts.ExpansionProbability == nil {
		opts.ExpansionProbability = func(n *Node) float64 { return 1 / float64(n.CountDescendants()) }
	}

	root := newNode(nil, -1, "")
	return &Controller{
		root:    root,
		current: root,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
	}
}

// Root returns the root node.
func (c *Controller) Root() *Node { return c.root }

// Current returns the cursor node.
func (c *Controller) Current() *Node { return c.current }

// NumExpands returns the number of expansions since the last Reset.
func (c *Controller) NumExpands() int { return c.numExpands }

// Reset moves the cursor back to the root and starts a new episode.
func (c *Controller) Reset() {
	c.current = c.root
	c.numExpands = 0
}

// Choose selects or creates a child of the current node and advances the
// cursor to it. When actions are given, a new child is labelled with the
// next untried action and no more than len(actions) children are created.
func (c *Controller) Choose(actions ...string) (*Choice, error) {
	cur := c.current
	explore := c.opts.ExplorationConstant
	best := c.bestChild(cur)

	expand := best == nil
	if best != nil {
		score := best.UCB1(explore) / (explore + 1)
		newScore := c.opts.NewChildScore(len(cur.children))
		c.logger.Debug("mcts.select", "path", best.Path(), "score", score, "new_score", newScore)
		if newScore > score {
			expand = true
		}
		if c.numExpands == 0 && best.IsLeafOrSinglePath() {
			p := c.opts.ExpansionProbability(best)
			if c.opts.Rand() < p {
				c.logger.Debug("mcts.expand_single_path", "path", best.Path(), "probability", p)
				expand = true
			}
		}
	}

	selected := best
	if expand {
		fullyExpanded := len(actions) > 0 && len(cur.children) >= len(actions)
		if fullyExpanded {
			if best == nil {
				return nil, ErrFullyExpanded
			}
		} else {
			var action string
			if len(actions) > 0 {
				action = actions[len(cur.children)]
			}
			selected = cur.addChild(action)
			c.numExpands++
			c.logger.Debug("mcts.expand", "path", selected.Path(), "action", action)
		}
	}

	if selected.parent != cur {
		return nil, ErrParentMismatch
	}
	c.current = selected
	return &Choice{ctrl: c, node: selected}, nil
}

// bestChild returns the first child with the strictly highest UCB1.
func (c *Controller) bestChild(n *Node) *Node {
	var (
		best      *Node
		bestScore float64
	)
	for _, child := range n.children {
		s := child.UCB1(c.opts.ExplorationConstant)
		if best == nil || s > bestScore {
			best, bestScore = child, s
		}
	}
	return best
}

func (c *Controller) backpropagate(n *Node, score float64) {
	for cur := n; cur != nil; cur = cur.parent {
		cur.update(score)
	}
}

// Score backpropagates score from the current node to the root.
func (c *Controller) Score(score float64) {
	c.backpropagate(c.current, score)
}

// BestLeafNodes returns the visited leaves ordered by mean score, best
// first. Ties keep tree order.
func (c *Controller) BestLeafNodes() []*Node {
	var leaves []*Node
	stack := []*Node{c.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if len(n.children) == 0 {
			if n.visits > 0 {
				leaves = append(leaves, n)
			}
			continue
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	sort.SliceStable(leaves, func(i, j int) bool { return leaves[i].Mean() > leaves[j].Mean() })
	return leaves
}

// Choice is the outcome of Choose.
type Choice struct {
	ctrl *Controller
	node *Node
}

// Node returns the chosen node.
func (ch *Choice) Node() *Node { return ch.node }

// Action returns the action label of the chosen node.
func (ch *Choice) Action() string { return ch.node.action }

// Path returns the index path of the chosen node.
func (ch *Choice) Path() string { return ch.node.Path() }

// ActionPath returns the action path of the chosen node.
func (ch *Choice) ActionPath() string { return ch.node.ActionPath() }

// Filename inserts the branch path after the first dot of name:
// "code.js" at path 0.1 becomes "code.0.1.js". Names without a dot get the
// path appended. At the root the name is returned unchanged.
func (ch *Choice) Filename(name string) string {
	if ch.node.parent == nil {
		return name
	}
	path := ch.node.Path()
	if base, ext, ok := strings.Cut(name, "."); ok {
		return base + "." + path + "." + ext
	}
	return name + "." + path
}

// Score backpropagates score from the chosen node to the root.
func (ch *Choice) Score(score float64) {
	ch.ctrl.backpropagate(ch.node, score)
}

// Estimate scores the node only if it has never been scored.
func (ch *Choice) Estimate(score float64) {
	if ch.node.visits == 0 {
		ch.ctrl.backpropagate(ch.node, score)
	}
}
