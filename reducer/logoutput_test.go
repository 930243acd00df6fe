package reducer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/tokens"
)

func buildLog(n int, errorAt ...int) string {
	isErr := map[int]bool{}
	for _, i := range errorAt {
		isErr[i] = true
	}
	lines := make([]string, n)
	for i := range lines {
		if isErr[i] {
			lines[i] = fmt.Sprintf("line %d: ERROR something broke", i)
		} else {
			lines[i] = fmt.Sprintf("line %d: compiling module", i)
		}
	}
	return strings.Join(lines, "\n")
}

func TestLogOutput_NoReductionWhenWithinTarget(t *testing.T) {
	r := NewLogOutput()
	msgs := []core.Message{core.UserMessage("short")}

	out, err := r.Reduce(context.Background(), msgs, 1000)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestLogOutput_ReducesLargestFirstAndKeepsOrder(t *testing.T) {
	r := NewLogOutput()
	small := core.UserMessage("run the build")
	big := core.ToolMessage("call-1", buildLog(400, 200))
	medium := core.AssistantMessage(buildLog(20))
	msgs := []core.Message{small, big, medium}

	total := tokens.CountMessages(tokens.Default, msgs)
	target := total / 3

	out, err := r.Reduce(context.Background(), msgs, target)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, small.Text(), out[0].Text())
	assert.Equal(t, core.RoleTool, out[1].Role)
	assert.Equal(t, "call-1", out[1].ToolCallID)
	assert.Less(t, len(out[1].Text()), len(big.Text()))
	assert.Contains(t, out[1].Text(), "line 200: ERROR something broke")
	assert.Contains(t, out[1].Text(), "\n...\n")
	assert.Equal(t, core.RoleAssistant, out[2].Role)

	// the input is not modified
	assert.Equal(t, buildLog(400, 200), msgs[1].Text())
}

func TestLogOutput_SkipsMessagesWithImages(t *testing.T) {
	r := NewLogOutput()
	img := core.Message{Role: core.RoleUser, Parts: []core.Part{
		core.TextPart{Text: buildLog(200)},
		core.NewImagePart("data:image/png;base64,AAAA"),
	}}

	out, err := r.Reduce(context.Background(), []core.Message{img}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0].Parts, 2)
}

func TestReduceText(t *testing.T) {
	text := buildLog(100, 50, 60)
	reduced := ReduceText(text, 0.2)

	sections := strings.Split(reduced, "\n...\n")
	require.Len(t, sections, 3)

	head := strings.Split(sections[0], "\n")
	tail := strings.Split(sections[2], "\n")
	assert.Len(t, head, 5)
	assert.Len(t, tail, 5)
	assert.Equal(t, "line 0: compiling module", head[0])
	assert.Equal(t, "line 99: compiling module", tail[4])

	middle := strings.Split(sections[1], "\n")
	assert.Len(t, middle, 9)
	assert.Contains(t, middle, "line 50: ERROR something broke")
	assert.Contains(t, middle, "line 60: ERROR something broke")
	assert.Less(t, strings.Index(sections[1], "line 50"), strings.Index(sections[1], "line 60"))

	assert.Equal(t, "", ReduceText("", 0.5))
}

func TestNone(t *testing.T) {
	out, err := None.Reduce(context.Background(), []core.Message{core.UserMessage("x")}, 0)
	require.NoError(t, err)
	assert.Nil(t, out)
}
