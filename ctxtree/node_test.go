package ctxtree

import (
	"fmt"
	"testing"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func texts(msgs []core.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text()
	}
	return out
}

func TestNode_AllMessagesOrder(t *testing.T) {
	root := New(core.UserMessage("a"))
	child := root.NewBranch(core.AssistantMessage("b"), core.UserMessage("c"))
	grand := child.NewBranch(core.AssistantMessage("d"))

	assert.Equal(t, []string{"a", "b", "c", "d"}, texts(grand.AllMessages()))
	assert.Equal(t, []string{"a"}, texts(root.AllMessages()))
	assert.Equal(t, 3, grand.Depth())
	assert.Same(t, child, grand.Parent())
}

func TestNode_BranchesShareAncestor(t *testing.T) {
	root := New(core.UserMessage("q"))
	left := root.NewBranch(core.AssistantMessage("left"))
	right := root.NewBranch(core.AssistantMessage("right"))
	assert.Equal(t, []string{"q", "left"}, texts(left.AllMessages()))
	assert.Equal(t, []string{"q", "right"}, texts(right.AllMessages()))
}

func TestNode_InputSliceIsCopied(t *testing.T) {
	msgs := []core.Message{core.UserMessage("x")}
	n := New(msgs...)
	msgs[0] = core.UserMessage("mutated")
	assert.Equal(t, "x", n.AllMessages()[0].Text())
	own := n.Messages()
	own[0] = core.UserMessage("again")
	assert.Equal(t, "x", n.Messages()[0].Text())
}

func TestNode_MessagesSince(t *testing.T) {
	root := New(core.UserMessage("a"))
	mid := root.NewBranch(core.UserMessage("b"))
	leaf := mid.NewBranch(core.UserMessage("c"))

	got, err := leaf.MessagesSince(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, texts(got))

	got, err = leaf.MessagesSince(leaf)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = leaf.MessagesSince(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, texts(got))

	other := New(core.UserMessage("z"))
	_, err = leaf.MessagesSince(other)
	var nae *core.NotAncestorError
	require.ErrorAs(t, err, &nae)
}

func TestNode_ReparentGraftsDelta(t *testing.T) {
	start := New(core.UserMessage("task"))
	failed := start.NewBranch(core.AssistantMessage("bad"), core.UserMessage("Try again"))
	pre := failed.NewBranch(core.UserMessage("retry prompt"))
	post := pre.NewBranch(core.AssistantMessage("good"))

	out, err := post.Reparent(pre, start)
	require.NoError(t, err)
	assert.Equal(t, []string{"task", "good"}, texts(out.AllMessages()))
	assert.Same(t, start, out.Parent())
}

func TestNode_ReparentIdentity(t *testing.T) {
	root := New(core.UserMessage("a"))
	leaf := root.NewBranch(core.UserMessage("b"))
	out, err := leaf.Reparent(root, root)
	require.NoError(t, err)
	assert.Same(t, leaf, out)
}

func TestNode_ReparentNonAncestorFails(t *testing.T) {
	root := New(core.UserMessage("a"))
	left := root.NewBranch(core.UserMessage("l"))
	right := root.NewBranch(core.UserMessage("r"))
	_, err := left.Reparent(right, root)
	assert.Equal(t, core.KindNotAncestor, core.KindOf(err))

	// identity shortcut does not bypass the ancestry check
	_, err = left.Reparent(right, right)
	assert.Equal(t, core.KindNotAncestor, core.KindOf(err))
}

func TestNode_EstimateSize(t *testing.T) {
	root := New(core.UserMessage("abcd"))
	leaf := root.NewBranch(core.UserMessage("abcdefgh"))
	assert.Equal(t, 3, leaf.EstimateSize(tokens.Heuristic{}))
	assert.Equal(t, 3, leaf.EstimateSize(nil))
}

func TestNode_NilReceiver(t *testing.T) {
	var n *Node
	assert.Empty(t, n.AllMessages())
	child := n.NewBranch(core.UserMessage("a"))
	assert.Nil(t, child.Parent())
	assert.Equal(t, 1, len(child.AllMessages()))
	assert.True(t, n.IsAncestorOf(child))
}

// buildChain draws a random chain and returns every node plus the expected
// flattened texts per node.
func buildChain(rt *rapid.T) ([]*Node, [][]string) {
	depth := rapid.IntRange(1, 8).Draw(rt, "depth")
	var (
		nodes    []*Node
		expected [][]string
		cur      *Node
		acc      []string
	)
	for d := 0; d < depth; d++ {
		n := rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("msgs_%d", d))
		msgs := make([]core.Message, n)
		for i := range msgs {
			txt := fmt.Sprintf("%d-%d", d, i)
			msgs[i] = core.UserMessage(txt)
			acc = append(acc, txt)
		}
		cur = cur.NewBranch(msgs...)
		nodes = append(nodes, cur)
		expected = append(expected, append([]string(nil), acc...))
	}
	return nodes, expected
}

func TestProperty_AllMessagesIsConcatenation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nodes, expected := buildChain(rt)
		for i, n := range nodes {
			got := texts(n.AllMessages())
			if len(got) != len(expected[i]) {
				rt.Fatalf("node %d: got %d messages, want %d", i, len(got), len(expected[i]))
			}
			for j := range got {
				if got[j] != expected[i][j] {
					rt.Fatalf("node %d: message %d = %q, want %q", i, j, got[j], expected[i][j])
				}
			}
		}
	})
}

func TestProperty_ReparentKeepsDelta(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nodes, _ := buildChain(rt)
		leaf := nodes[len(nodes)-1]
		split := nodes[rapid.IntRange(0, len(nodes)-1).Draw(rt, "split")]
		base := New(core.UserMessage("base"))

		delta, err := leaf.MessagesSince(split)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		out, err := leaf.Reparent(split, base)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if len(out.AllMessages()) != 1+len(delta) {
			rt.Fatalf("grafted length %d, want %d", len(out.AllMessages()), 1+len(delta))
		}
		if _, err := leaf.Reparent(base, split); core.KindOf(err) != core.KindNotAncestor {
			rt.Fatalf("expected NotAncestorError, got %v", err)
		}
	})
}
