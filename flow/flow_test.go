package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/llmflow/artifact"
	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/engine"
	"github.com/hupe1980/llmflow/model"
	"github.com/hupe1980/llmflow/reducer"
	"github.com/hupe1980/llmflow/tool"
)

func newTestBuilder(t *testing.T, m model.Model) (Builder, core.ArtifactStore) {
	t.Helper()
	store := artifact.NewInMemoryStore()
	eng := engine.New(func(o *engine.Options) { o.Store = store })
	return New(func(o *Options) {
		o.Engine = eng
		o.Model = m
	}), store
}

func lastUserText(req model.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return req.Messages[i].Text()
		}
	}
	return ""
}

func TestRun_Text(t *testing.T) {
	m := model.NewMockModel("mock").AddText("a haiku")
	b, store := newTestBuilder(t, m)

	res, err := b.System("You are a poet.").Prompt("Write a haiku.").Output("haiku.txt").Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "a haiku", res.Output)
	assert.Equal(t, "haiku.txt", res.Artifact().Metadata.Name)

	msgs := res.Context.AllMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Write a haiku.", msgs[0].Text())
	assert.Equal(t, "a haiku", msgs[1].Text())

	req := m.Requests()[0]
	assert.True(t, strings.HasPrefix(req.System, "You are a poet.\n"))

	stored, err := store.Latest(context.Background(), "haiku.txt")
	require.NoError(t, err)
	assert.Equal(t, "a haiku", stored.Text())
}

func TestRun_UnnamedOutput(t *testing.T) {
	b, store := newTestBuilder(t, model.NewMockModel("mock"))

	_, err := b.Prompt("one").Run(context.Background())
	require.NoError(t, err)
	_, err = b.Prompt("two").Format(core.FormatMarkdown).Run(context.Background())
	require.NoError(t, err)

	names, err := store.List(context.Background(), "llm-")
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Regexp(t, regexp.MustCompile(`^llm-\d+-[0-9a-z]+\.out$`), names[0])
	assert.Regexp(t, regexp.MustCompile(`^llm-\d+-[0-9a-z]+\.md$`), names[1])
}

func TestGenerate_RetriesInvalidOutput(t *testing.T) {
	m := model.NewMockModel("mock").AddText("not json").AddText(`{"n": 1}`)
	b, store := newTestBuilder(t, m)
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"n": map[string]any{"type": "integer"}},
		"required":   []string{"n"},
	}

	res, err := b.Prompt("give me n").Output("n.json").Generate(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(1)}, res.Output)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.True(t, strings.HasPrefix(lastUserText(reqs[1]), "Try again. Error: "))

	// the failed trial is pruned from the context
	msgs := res.Context.AllMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "give me n", msgs[0].Text())
	assert.Equal(t, `{"n": 1}`, msgs[1].Text())

	a, err := store.Latest(context.Background(), "n.json")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Metadata.Version)
}

func TestGenerate_RetryExhausted(t *testing.T) {
	m := model.NewMockModel("mock").SetHandler(func(context.Context, model.Request) (*model.Response, error) {
		return &model.Response{Message: core.AssistantMessage("never json")}, nil
	})
	b, store := newTestBuilder(t, m)

	_, err := b.Prompt("x").Output("x.json").Retries(3).Generate(context.Background(), nil)

	var exhausted *core.RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Trials)
	assert.Equal(t, core.KindOutputValidation, core.KindOf(exhausted.Last))
	assert.Equal(t, 3, m.Calls())

	_, err = store.LatestMetadata(context.Background(), "x.json")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRun_ModelErrorPropagates(t *testing.T) {
	m := model.NewMockModel("mock").AddError(errors.New("unavailable"))
	b, _ := newTestBuilder(t, m)

	_, err := b.Prompt("x").Run(context.Background())
	var mce *core.ModelCallError
	require.ErrorAs(t, err, &mce)
	assert.Equal(t, 1, m.Calls())
}

func TestRun_StrictOverwritePropagates(t *testing.T) {
	m := model.NewMockModel("mock")
	b, store := newTestBuilder(t, m)
	_, err := store.Save(context.Background(), core.NewArtifact("x.txt", []byte("old"), core.ContentText))
	require.NoError(t, err)

	_, err = b.Prompt("x").Output("x.txt").Run(context.Background())
	var strict *core.StrictOverwriteError
	require.ErrorAs(t, err, &strict)
	assert.Equal(t, 0, m.Calls())
}

func TestRun_ToolRound(t *testing.T) {
	lookup := tool.NewFunctionTool("lookup", "looks up facts", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return "Paris", nil
	})
	m := model.NewMockModel("mock").
		AddToolCalls(core.ToolCall{ID: "call-1", Name: "lookup", Arguments: `{}`}).
		AddText("The capital is Paris.")
	b, _ := newTestBuilder(t, m)

	res, err := b.Tools(lookup).Prompt("What is the capital of France?").Output("capital.txt").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "The capital is Paris.", res.Output)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Tools, 1)
	assert.Empty(t, reqs[1].Tools)
	assert.Equal(t, toolRoundPrompt, lastUserText(reqs[1]))

	var sawToolResult bool
	for _, msg := range reqs[1].Messages {
		if msg.Role == core.RoleTool && msg.ToolCallID == "call-1" {
			sawToolResult = true
			assert.Contains(t, msg.Text(), "Paris")
		}
	}
	assert.True(t, sawToolResult)

	msgs := res.Context.AllMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "The capital is Paris.", msgs[1].Text())
}

func TestUseTools(t *testing.T) {
	add := tool.NewTypedTool("add", "adds", func(_ *core.ToolContext, in struct {
		A int `json:"a"`
		B int `json:"b"`
	}) (int, error) {
		return in.A + in.B, nil
	})

	t.Run("results in call order", func(t *testing.T) {
		m := model.NewMockModel("mock").AddToolCalls(
			core.ToolCall{ID: "1", Name: "add", Arguments: `{"a": 1, "b": 2}`},
			core.ToolCall{ID: "2", Name: "add", Arguments: `{"a": 3, "b": 4}`},
		)
		b, _ := newTestBuilder(t, m)

		res, err := b.Prompt("add things").UseTools(context.Background(), add)
		require.NoError(t, err)
		assert.Equal(t, []any{3, 7}, res.Output)
	})

	t.Run("tool_results answered as text", func(t *testing.T) {
		m := model.NewMockModel("mock").AddText(`{"tool_results": {"lookup": "Paris"}}`)
		b, _ := newTestBuilder(t, m)

		res, err := b.Prompt("capital of France?").UseTools(context.Background(), add)
		require.NoError(t, err)
		assert.Equal(t, []any{"Paris"}, res.Output)
		assert.Equal(t, 1, m.Calls())
	})

	t.Run("answer without tool results is retried", func(t *testing.T) {
		m := model.NewMockModel("mock").
			AddText(`{"answer": 3}`).
			AddToolCalls(core.ToolCall{ID: "1", Name: "add", Arguments: `{"a": 1, "b": 2}`})
		b, _ := newTestBuilder(t, m)

		res, err := b.Prompt("add things").UseTools(context.Background(), add)
		require.NoError(t, err)
		assert.Equal(t, []any{3}, res.Output)

		reqs := m.Requests()
		require.Len(t, reqs, 2)
		assert.True(t, strings.HasPrefix(lastUserText(reqs[1]), retryPrompt))
	})

	t.Run("model never calls tools", func(t *testing.T) {
		m := model.NewMockModel("mock").SetHandler(func(context.Context, model.Request) (*model.Response, error) {
			return &model.Response{Message: core.AssistantMessage(`{"done": true}`)}, nil
		})
		b, _ := newTestBuilder(t, m)

		_, err := b.Prompt("add things").Retries(2).UseTools(context.Background(), add)
		var exhausted *core.RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, core.KindOutputValidation, core.KindOf(exhausted.Last))
	})

	t.Run("failing tool is retried then reported", func(t *testing.T) {
		var calls atomic.Int32
		broken := tool.NewFunctionTool("broken", "fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
			calls.Add(1)
			return nil, errors.New("disk full")
		})
		m := model.NewMockModel("mock").SetHandler(func(context.Context, model.Request) (*model.Response, error) {
			return &model.Response{Message: core.Message{
				Role:      core.RoleAssistant,
				ToolCalls: []core.ToolCall{{ID: "x", Name: "broken", Arguments: `{}`}},
			}}, nil
		})
		b, _ := newTestBuilder(t, m)

		_, err := b.Prompt("go").Retries(2).UseTools(context.Background(), broken)
		var exhausted *core.RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, core.KindToolExecution, core.KindOf(exhausted.Last))
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestGenerateInto(t *testing.T) {
	type person struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	m := model.NewMockModel("mock").AddText(`{"name": "Ada", "age": 36}`)
	b, _ := newTestBuilder(t, m)

	var p person
	_, err := b.Prompt("who?").GenerateInto(context.Background(), nil, &p)
	require.NoError(t, err)
	assert.Equal(t, person{Name: "Ada", Age: 36}, p)
	assert.Contains(t, m.Requests()[0].System, `"name"`)

	_, err = b.GenerateInto(context.Background(), nil, p)
	require.Error(t, err)
}

func TestBuilder_Immutable(t *testing.T) {
	b, _ := newTestBuilder(t, model.NewMockModel("mock"))

	base := b.Prompt("first")
	extended := base.Prompt("second").System("sys").Output("out.json").Timestamp(10)

	assert.Len(t, base.parts, 1)
	assert.Equal(t, "first", base.parts[0].(core.TextPart).Text)
	assert.Equal(t, "first\nsecond", extended.parts[0].(core.TextPart).Text)
	assert.Empty(t, base.system)
	assert.Equal(t, core.FormatString, base.format)
	assert.Equal(t, core.FormatJSON, extended.format)

	assert.Equal(t, int64(10), extended.Timestamp(5).timestamp)
	assert.Equal(t, int64(20), extended.Timestamp(20).timestamp)

	withImage := base.Image("data:image/png;base64,AAAA")
	assert.Len(t, withImage.parts, 2)
	assert.Len(t, base.parts, 1)
}

func TestBuilder_StickyErrors(t *testing.T) {
	t.Run("unsupported image input", func(t *testing.T) {
		b, _ := newTestBuilder(t, model.NewMockModel("text-only", model.CapabilityChat))
		_, err := b.Image("http://example.com/cat.png").Prompt("describe").Run(context.Background())
		require.ErrorIs(t, err, model.ErrUnsupported)
	})

	t.Run("unknown model name", func(t *testing.T) {
		registry := model.NewRegistry()
		registry.Register("mock", func(cfg model.Config) (model.Model, error) {
			return model.NewMockModel(cfg.Model), nil
		})
		clients := model.NewClients(registry, model.Static{"default": {Type: "mock", Model: "m"}})
		b := New(func(o *Options) { o.Models = clients })

		_, err := b.Model("missing").Prompt("x").Run(context.Background())
		require.ErrorContains(t, err, `model not found: "missing"`)

		res, err := b.Model("default").Prompt("x").Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Mock response to: x", res.Output)
	})

	t.Run("no model", func(t *testing.T) {
		_, err := New().Prompt("x").Run(context.Background())
		require.Error(t, err)
	})
}

func TestBuilder_AddObject(t *testing.T) {
	b, _ := newTestBuilder(t, model.NewMockModel("mock"))
	obj := map[string]any{"title": "Go", "tags": []string{"a"}}

	jsonMsg := b.AddObject(obj, "doc").Messages()
	require.Len(t, jsonMsg, 1)
	assert.Equal(t, "<document id=\"doc\">\n{\"tags\":[\"a\"],\"title\":\"Go\"}\n</document>", jsonMsg[0].Text())

	yamlMsg := b.UseYAML(true).AddObject(obj, "").Messages()
	assert.Equal(t, "tags:\n    - a\ntitle: Go", yamlMsg[0].Text())

	assert.Equal(t, "plain", b.AddObject("plain", "").Messages()[0].Text())
	assert.Empty(t, b.AddObject(nil, "x").Messages())
}

func TestBuilder_AddArtifact(t *testing.T) {
	b, _ := newTestBuilder(t, model.NewMockModel("mock"))
	a := core.NewArtifact("notes.txt", []byte("remember"), core.ContentText)
	a.Metadata.Timestamp = 42

	next := b.AddArtifact(&a)
	assert.Equal(t, int64(42), next.timestamp)
	assert.Equal(t, "<document id=\"notes.txt\">\nremember\n</document>", next.Messages()[0].Text())
}

func TestBuilder_Variables(t *testing.T) {
	m := model.NewMockModel("mock")
	b, _ := newTestBuilder(t, m)

	_, err := b.Variables(map[string]any{"topic": "Go"}).Prompt("Write about {{.topic}}.").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Write about Go.", lastUserText(m.Requests()[0]))
}

func TestRun_ReducesLargeContext(t *testing.T) {
	m := model.NewMockModel("mock")
	b, _ := newTestBuilder(t, m)

	var reduced atomic.Int32
	spy := reducer.Func(func(_ context.Context, msgs []core.Message, target int) ([]core.Message, error) {
		reduced.Add(1)
		assert.Equal(t, 10, target)
		out := make([]core.Message, len(msgs))
		for i, msg := range msgs {
			out[i] = core.NewTextMessage(msg.Role, "short")
		}
		return out, nil
	})

	_, err := b.AddMessage(core.UserMessage(strings.Repeat("long log line\n", 100))).
		Budget(10).Reducer(spy).Prompt("summarize").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), reduced.Load())
	assert.Equal(t, "short", m.Requests()[0].Messages[0].Text())
}

func TestResult_Continue(t *testing.T) {
	m := model.NewMockModel("mock").AddText("first answer").AddText("second answer")
	b, _ := newTestBuilder(t, m)

	res, err := b.Prompt("q1").Output("a.txt").Run(context.Background())
	require.NoError(t, err)

	next, err := res.Continue().Prompt("q2").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second answer", next.Output)
	assert.Len(t, next.Context.AllMessages(), 4)
	assert.Len(t, m.Requests()[1].Messages, 3)
}

func TestFilter(t *testing.T) {
	evenSelector := func(_ context.Context, req model.Request) (*model.Response, error) {
		for _, msg := range req.Messages {
			var payload struct {
				IndexedItems []struct {
					ID   int `json:"_id"`
					Item int `json:"item"`
				} `json:"indexed_items"`
			}
			if json.Unmarshal([]byte(msg.Text()), &payload) != nil || payload.IndexedItems == nil {
				continue
			}
			var ids []int
			for i := len(payload.IndexedItems) - 1; i >= 0; i-- {
				if payload.IndexedItems[i].Item%2 == 0 {
					ids = append(ids, payload.IndexedItems[i].ID)
				}
			}
			out, _ := json.Marshal(map[string]any{"matching_items": ids})
			return &model.Response{Message: core.AssistantMessage(string(out))}, nil
		}
		return nil, fmt.Errorf("no indexed items")
	}

	t.Run("single batch", func(t *testing.T) {
		m := model.NewMockModel("mock").SetHandler(evenSelector)
		b, _ := newTestBuilder(t, m)

		out, err := Filter(context.Background(), b.Prompt("select even numbers"), []int{1, 2, 3, 4})
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4}, out)
		assert.Equal(t, 1, m.Calls())
		assert.Contains(t, m.Requests()[0].System, filterSystem)
	})

	t.Run("parallel batches keep order", func(t *testing.T) {
		m := model.NewMockModel("mock").SetHandler(evenSelector)
		b, _ := newTestBuilder(t, m)

		items := make([]int, 3000)
		for i := range items {
			items[i] = i
		}
		out, err := Filter(context.Background(), b.Prompt("select even numbers"), items)
		require.NoError(t, err)
		require.Len(t, out, 1500)
		for i, v := range out {
			if v != 2*i {
				t.Fatalf("out[%d] = %d, want %d", i, v, 2*i)
			}
		}
		assert.Greater(t, m.Calls(), 1)
	})

	t.Run("empty", func(t *testing.T) {
		b, _ := newTestBuilder(t, model.NewMockModel("mock"))
		out, err := Filter(context.Background(), b, []string{})
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestTTS_Cached(t *testing.T) {
	m := model.NewMockModel("mock")
	var calls atomic.Int32
	m.SpeakFunc = func(_ context.Context, req model.SpeechRequest) ([]byte, error) {
		calls.Add(1)
		assert.Equal(t, "alloy", req.Voice)
		return []byte("audio:" + req.Text), nil
	}
	b, _ := newTestBuilder(t, m)

	a1, err := b.TTS(context.Background(), model.SpeechRequest{Text: "hello"})
	require.NoError(t, err)
	a2, err := b.TTS(context.Background(), model.SpeechRequest{Text: "hello", Format: "mp3"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, a1.Metadata.Name, a2.Metadata.Name)
	assert.Regexp(t, `^tts-.+\.mp3$`, a1.Metadata.Name)
	assert.Equal(t, core.ContentBinary, a2.Metadata.ContentType)
	assert.Equal(t, "audio:hello", a2.Text())
}

func TestTranscribe(t *testing.T) {
	m := model.NewMockModel("mock")
	var formats []string
	m.TranscribeFunc = func(_ context.Context, req model.TranscriptionRequest) (string, error) {
		formats = append(formats, req.Format)
		return "text", nil
	}
	b, _ := newTestBuilder(t, m)

	mp3 := core.NewArtifact("speech.mp3", []byte{1}, core.ContentBinary)
	wav := core.NewArtifact("speech.wav", []byte{1}, core.ContentBinary)
	for _, a := range []*core.Artifact{&mp3, &wav} {
		text, err := b.Transcribe(context.Background(), a, "")
		require.NoError(t, err)
		assert.Equal(t, "text", text)
	}
	assert.Equal(t, []string{"mp3", "wav"}, formats)

	_, err := b.Transcribe(context.Background(), &core.Artifact{}, "")
	require.Error(t, err)
}

func TestEmbedding(t *testing.T) {
	b, _ := newTestBuilder(t, model.NewMockModel("mock"))
	vec, err := b.Embedding(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, vec)

	chatOnly, _ := newTestBuilder(t, model.NewMockModel("chat", model.CapabilityChat))
	_, err = chatOnly.Embedding(context.Background(), "abc")
	require.ErrorIs(t, err, model.ErrUnsupported)
}

func TestTask(t *testing.T) {
	task, err := ParseTask([]byte(`
system: You are a poet.
prompt: Write a haiku about {{.topic}}.
output: haiku.txt
overwrite: exact
variables:
  topic: autumn
`))
	require.NoError(t, err)

	m := model.NewMockModel("mock")
	b, store := newTestBuilder(t, m)

	res, err := task.Run(context.Background(), b, map[string]any{"topic": "winter"})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: Write a haiku about winter.", res.Output)

	// exact policy reuses the stored artifact for identical inputs
	_, err = task.Run(context.Background(), b, map[string]any{"topic": "winter"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls())

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"haiku.txt"}, names)

	_, err = ParseTask([]byte("format: xml\nprompt: x\n"))
	require.Error(t, err)
	_, err = ParseTask([]byte("output: x.txt\n"))
	require.Error(t, err)
}
