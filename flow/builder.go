package flow

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/ctxtree"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/model"
	"github.com/hupe1980/llmflow/reducer"
	"github.com/hupe1980/llmflow/tool"
)

// Builder accumulates a generation request. The zero value is not usable;
// start from New.
type Builder struct {
	env *env

	node   *ctxtree.Node
	parts  []core.Part // pending prompt
	system string

	format    core.OutputFormat
	overwrite core.OverwritePolicy
	output    string
	timestamp int64

	model     model.Model
	modelName string
	tools     []tool.Tool

	retries       int
	budget        int
	maxToolRounds int
	reducer       reducer.Reducer
	useYAML       bool
	vars          map[string]any

	maxTokens   int
	temperature *float64

	err error
}

func (b Builder) withErr(err error) Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first configuration error recorded by the builder.
func (b Builder) Err() error { return b.err }

// resolveModel returns the selected model.
func (b Builder) resolveModel() (model.Model, error) {
	if b.model != nil {
		return b.model, nil
	}
	if b.env.models == nil {
		return nil, fmt.Errorf("flow: no model configured")
	}
	return b.env.models.Get(b.modelName)
}

// Model selects a model by name (or alias). Resolution errors surface at
// the next run operation.
func (b Builder) Model(name string) Builder {
	if b.env.models == nil {
		return b.withErr(fmt.Errorf("flow: model %q requested but no model source configured", name))
	}
	m, err := b.env.models.Get(name)
	if err != nil {
		return b.withErr(err)
	}
	b.model, b.modelName = m, name
	return b
}

// UseModel selects a model instance directly.
func (b Builder) UseModel(m model.Model) Builder {
	b.model, b.modelName = m, m.Info().Name
	return b
}

func (b Builder) addPart(p core.Part, capability model.Capability) Builder {
	m, err := b.resolveModel()
	if err != nil {
		return b.withErr(err)
	}
	if !m.Supports(capability) {
		return b.withErr(fmt.Errorf("flow: model %s does not support %s input: %w", m.Info().Name, capability, model.ErrUnsupported))
	}
	if tp, ok := p.(core.TextPart); ok && len(b.parts) > 0 {
		if last, ok := b.parts[len(b.parts)-1].(core.TextPart); ok {
			parts := slices.Clone(b.parts)
			parts[len(parts)-1] = core.TextPart{Text: last.Text + "\n" + tp.Text}
			b.parts = parts
			return b
		}
	}
	b.parts = append(slices.Clone(b.parts), p)
	return b
}

// Prompt appends text to the pending user message. Template placeholders
// are rendered with the builder variables. Empty text is ignored.
func (b Builder) Prompt(text string) Builder {
	if text == "" {
		return b
	}
	rendered, err := util.RenderTemplate(text, b.vars)
	if err != nil {
		return b.withErr(fmt.Errorf("flow: render prompt: %w", err))
	}
	return b.addPart(core.TextPart{Text: rendered}, model.CapabilityChat)
}

// promptRaw appends text without template rendering.
func (b Builder) promptRaw(text string) Builder {
	return b.addPart(core.TextPart{Text: text}, model.CapabilityChat)
}

// Image appends an image (URL or data URL) to the pending user message.
func (b Builder) Image(url string) Builder {
	if url == "" {
		return b
	}
	return b.addPart(core.NewImagePart(url), model.CapabilityImages)
}

// System appends a line to the system text.
func (b Builder) System(text string) Builder {
	rendered, err := util.RenderTemplate(text, b.vars)
	if err != nil {
		return b.withErr(fmt.Errorf("flow: render system: %w", err))
	}
	if b.system != "" {
		b.system += "\n" + rendered
	} else {
		b.system = rendered
	}
	return b
}

// AddMessage appends a message to the context.
func (b Builder) AddMessage(m core.Message) Builder {
	b.node = b.node.NewBranch(m)
	return b
}

// UseYAML serializes objects added with AddObject as YAML instead of JSON.
func (b Builder) UseYAML(enabled bool) Builder {
	b.useYAML = enabled
	return b
}

func (b Builder) objectToString(obj any) (string, error) {
	if b.useYAML {
		out, err := yaml.Marshal(obj)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(out), "\n"), nil
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// AddObject adds obj as user message. Strings are added verbatim, other
// values are serialized. A non-empty name wraps the text in a
// <document id="name"> element.
func (b Builder) AddObject(obj any, name string) Builder {
	if obj == nil {
		return b
	}
	text, ok := obj.(string)
	if !ok {
		var err error
		if text, err = b.objectToString(obj); err != nil {
			return b.withErr(fmt.Errorf("flow: serialize object %q: %w", name, err))
		}
	}
	if name != "" {
		text = fmt.Sprintf("<document id=%q>\n%s\n</document>", name, text)
	}
	return b.AddMessage(core.UserMessage(text))
}

// AddArtifact adds the artifact content as named document and raises the
// freshness timestamp to the artifact timestamp.
func (b Builder) AddArtifact(a *core.Artifact) Builder {
	if a == nil {
		return b
	}
	var obj any = a.Text()
	if a.Metadata.ContentType == core.ContentJSON && b.useYAML {
		var v any
		if err := json.Unmarshal(a.Content, &v); err == nil {
			obj = v
		}
	}
	return b.AddObject(obj, a.Metadata.Name).Timestamp(a.Metadata.Timestamp)
}

// Continue resets the pending prompt, output name and format and continues
// from node.
func (b Builder) Continue(node *ctxtree.Node) Builder {
	b.node = node
	b.parts = nil
	b.output = ""
	b.format = core.FormatString
	return b
}

// Context returns the current context node.
func (b Builder) Context() *ctxtree.Node { return b.node }

// Messages returns all messages of the context, without the pending prompt.
func (b Builder) Messages() []core.Message { return b.node.AllMessages() }

// Format sets the output format.
func (b Builder) Format(f core.OutputFormat) Builder {
	b.format = f
	return b
}

// Overwrite sets the overwrite policy of the output artifact.
func (b Builder) Overwrite(p core.OverwritePolicy) Builder {
	b.overwrite = p
	return b
}

// Output names the output artifact and infers the format from a .json, .md
// or .txt extension.
func (b Builder) Output(name string) Builder {
	b.output = name
	b.format = core.FormatForName(name, b.format)
	return b
}

// Timestamp raises the freshness timestamp of the inputs. Lower values are
// ignored.
func (b Builder) Timestamp(ts int64) Builder {
	if ts > b.timestamp {
		b.timestamp = ts
	}
	return b
}

// Tools replaces the offered tools.
func (b Builder) Tools(tools ...tool.Tool) Builder {
	b.tools = slices.Clone(tools)
	return b
}

// AddTools appends to the offered tools.
func (b Builder) AddTools(tools ...tool.Tool) Builder {
	b.tools = append(slices.Clone(b.tools), tools...)
	return b
}

// Retries sets the number of trials per run.
func (b Builder) Retries(n int) Builder {
	b.retries = n
	return b
}

// Budget sets the context size in tokens above which the context is
// reduced.
func (b Builder) Budget(tokens int) Builder {
	b.budget = tokens
	return b
}

// MaxToolRounds sets how many tool rounds a run may take.
func (b Builder) MaxToolRounds(n int) Builder {
	b.maxToolRounds = n
	return b
}

// Reducer replaces the context reducer.
func (b Builder) Reducer(r reducer.Reducer) Builder {
	b.reducer = r
	return b
}

// Variables merges template variables used by Prompt and System.
func (b Builder) Variables(vars map[string]any) Builder {
	merged := maps.Clone(b.vars)
	if merged == nil {
		merged = make(map[string]any, len(vars))
	}
	maps.Copy(merged, vars)
	b.vars = merged
	return b
}

// MaxTokens limits the completion length.
func (b Builder) MaxTokens(n int) Builder {
	b.maxTokens = n
	return b
}

// Temperature sets the sampling temperature.
func (b Builder) Temperature(t float64) Builder {
	b.temperature = &t
	return b
}

// pendingMessages returns the messages added to the context by the next
// run: the pending prompt, or the system text when neither a prompt nor a
// history exists.
func (b Builder) pendingMessages() []core.Message {
	if len(b.parts) > 0 {
		return []core.Message{{Role: core.RoleUser, Parts: slices.Clone(b.parts)}}
	}
	if b.system != "" && len(b.node.AllMessages()) == 0 {
		return []core.Message{core.UserMessage(b.system)}
	}
	return nil
}
