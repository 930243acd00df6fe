// Package ctxtree implements the persistent conversation context tree.
//
// A Node holds the messages appended at that point plus a pointer to its
// parent; the full history of a node is the root to node concatenation of
// every node's own messages. Nodes are immutable after construction, so any
// number of branches can share an ancestor and be read concurrently.
package ctxtree

import (
	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/tokens"
)

// Node is an immutable increment of conversation history.
type Node struct {
	parent   *Node
	messages []core.Message
}

// New creates a root node holding msgs.
func New(msgs ...core.Message) *Node {
	return &Node{messages: cloneMessages(msgs)}
}

// NewBranch creates a child of n holding msgs. Ancestor data is shared, not
// copied. A nil receiver creates a root.
func (n *Node) NewBranch(msgs ...core.Message) *Node {
	return &Node{parent: n, messages: cloneMessages(msgs)}
}

// Parent returns the parent node or nil for a root.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Messages returns a copy of the messages added at this node only.
func (n *Node) Messages() []core.Message {
	if n == nil {
		return nil
	}
	return cloneMessages(n.messages)
}

// Depth returns the number of nodes from the root to n, inclusive.
func (n *Node) Depth() int {
	d := 0
	for cur := n; cur != nil; cur = cur.parent {
		d++
	}
	return d
}

// AllMessages returns the root to n history in insertion order.
func (n *Node) AllMessages() []core.Message {
	msgs, _ := n.collect(nil)
	return msgs
}

// MessagesSince returns the messages strictly after ancestor up to and
// including n. A nil ancestor denotes the origin above the root and yields
// the full history. If ancestor is not on n's parent chain the result is a
// *core.NotAncestorError.
func (n *Node) MessagesSince(ancestor *Node) ([]core.Message, error) {
	return n.collect(ancestor)
}

// Reparent grafts the messages added since split onto base. When split and
// base are the same node the receiver is returned unchanged. A split that is
// not an ancestor always fails with *core.NotAncestorError.
func (n *Node) Reparent(split, base *Node) (*Node, error) {
	delta, err := n.MessagesSince(split)
	if err != nil {
		return nil, err
	}
	if split == base {
		return n, nil
	}
	return base.NewBranch(delta...), nil
}

// EstimateSize sums the token cost of every message on the chain.
func (n *Node) EstimateSize(c tokens.Counter) int {
	if c == nil {
		c = tokens.Default
	}
	total := 0
	for cur := n; cur != nil; cur = cur.parent {
		total += tokens.CountMessages(c, cur.messages)
	}
	return total
}

// IsAncestorOf reports whether n lies on other's parent chain (a node is its
// own ancestor).
func (n *Node) IsAncestorOf(other *Node) bool {
	for cur := other; cur != nil; cur = cur.parent {
		if cur == n {
			return true
		}
	}
	return n == nil
}

func (n *Node) collect(until *Node) ([]core.Message, error) {
	var chain []*Node
	size := 0
	cur := n
	for cur != until {
		if cur == nil {
			return nil, &core.NotAncestorError{}
		}
		chain = append(chain, cur)
		size += len(cur.messages)
		cur = cur.parent
	}
	out := make([]core.Message, 0, size)
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].messages...)
	}
	return out, nil
}

func cloneMessages(msgs []core.Message) []core.Message {
	if len(msgs) == 0 {
		return nil
	}
	return append([]core.Message(nil), msgs...)
}
