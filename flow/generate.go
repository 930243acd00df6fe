package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/ctxtree"
	"github.com/hupe1980/llmflow/engine"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/tool"
)

// Result is the outcome of a run operation.
type Result struct {
	// Output is the text for Run, the decoded JSON value for Generate and
	// the list of tool results for UseTools.
	Output any

	// Context holds the initial request and the final answer.
	Context *ctxtree.Node

	// Run is the engine result of the successful trial.
	Run *engine.Result

	builder Builder
}

// Text returns the output artifact text.
func (r *Result) Text() string {
	if r.Run == nil || r.Run.Artifact == nil {
		return ""
	}
	return r.Run.Artifact.Text()
}

// Artifact returns the output artifact.
func (r *Result) Artifact() *core.Artifact {
	if r.Run == nil {
		return nil
	}
	return r.Run.Artifact
}

// Continue returns a builder that continues the conversation after this
// result.
func (r *Result) Continue() Builder {
	return r.builder.Continue(r.Context)
}

// retryable reports whether an error of kind k is answered with another
// trial. Everything else propagates immediately.
var retryable = map[core.ErrorKind]bool{
	core.KindOutputValidation: true,
	core.KindToolExecution:    true,
	core.KindWriteConflict:    true,
}

// Run generates output in the configured format and returns its text.
func (b Builder) Run(ctx context.Context) (*Result, error) {
	res, err := b.generate(ctx, b.format, nil, false)
	if err != nil {
		return nil, err
	}
	res.Output = res.Text()
	return res, nil
}

// Generate generates a JSON value. A non-nil schema constrains the value.
func (b Builder) Generate(ctx context.Context, schema map[string]any) (*Result, error) {
	return b.generate(ctx, core.FormatJSON, schema, false)
}

// GenerateInto generates a JSON object and decodes it into out, a pointer
// to a struct or map. A nil schema is derived from the type of out.
func (b Builder) GenerateInto(ctx context.Context, schema map[string]any, out any) (*Result, error) {
	if out == nil || reflect.TypeOf(out).Kind() != reflect.Pointer {
		return nil, fmt.Errorf("flow: GenerateInto needs a non-nil pointer, got %T", out)
	}
	if schema == nil {
		schema = util.CreateSchema(out)
	}
	res, err := b.generate(ctx, core.FormatJSON, schema, false)
	if err != nil {
		return nil, err
	}
	if err := decode(res.Output, out); err != nil {
		return nil, fmt.Errorf("flow: decode output: %w", err)
	}
	return res, nil
}

// UseTools asks the model to call tools and returns their results in call
// order. It fails when any tool failed after all trials.
func (b Builder) UseTools(ctx context.Context, tools ...tool.Tool) (*Result, error) {
	res, err := b.Tools(tools...).generate(ctx, core.FormatJSON, toolResultsSchema, true)
	if err != nil {
		return nil, err
	}

	var values []any
	if len(res.Run.ToolCalls) > 0 {
		for _, tc := range res.Run.ToolCalls {
			if tc.Err != nil {
				return nil, tc.Err
			}
			values = append(values, tc.Result)
		}
	} else {
		results := toolResultsOf(res.Run)
		keys := make([]string, 0, len(results))
		for k := range results {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := results[k]
			if failed(v) {
				return nil, fmt.Errorf("flow: tool %s failed: %v", k, v)
			}
			values = append(values, v)
		}
	}
	res.Output = values
	return res, nil
}

var toolResultsSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"tool_results": map[string]any{"type": "object"}},
	"required":   []string{"tool_results"},
}

// toolResultsOf returns the tool_results aggregate of a run. Without
// executed tool calls it is read from the JSON output.
func toolResultsOf(res *engine.Result) map[string]any {
	if res.ToolResults != nil {
		return res.ToolResults
	}
	if m, ok := res.Value.(map[string]any); ok {
		if tr, ok := m["tool_results"].(map[string]any); ok {
			return tr
		}
	}
	return nil
}

// failed reports whether v is a failure entry of the tool_results
// aggregate.
func failed(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	success, ok := m["success"].(bool)
	return ok && !success && m["fname"] != nil
}

// reduceContext replaces the context with a reduced copy when it exceeds
// the budget.
func (b Builder) reduceContext(ctx context.Context) (Builder, error) {
	if b.reducer == nil || b.budget <= 0 {
		return b, nil
	}
	counter := b.env.engine.Counter()
	size := b.node.EstimateSize(counter)
	if size <= b.budget {
		return b, nil
	}
	msgs := b.node.AllMessages()
	reduced, err := b.reducer.Reduce(ctx, msgs, b.budget)
	if err != nil {
		return b, fmt.Errorf("flow: reduce context: %w", err)
	}
	if reduced == nil {
		return b, nil
	}
	b.node = ctxtree.New(reduced...)
	b.env.logger.Info("flow.context.reduced", "from_tokens", size, "to_tokens", b.node.EstimateSize(counter), "budget", b.budget)
	return b, nil
}

func (b Builder) generate(ctx context.Context, format core.OutputFormat, schema map[string]any, returnToolResults bool) (*Result, error) {
	if b.err != nil {
		return nil, b.err
	}
	m, err := b.resolveModel()
	if err != nil {
		return nil, err
	}
	if b.retries < 1 {
		return nil, fmt.Errorf("flow: retries must be at least 1")
	}

	self, err := b.reduceContext(ctx)
	if err != nil {
		return nil, err
	}

	outpath := self.output
	if outpath == "" {
		outpath = self.env.nextOutputName(format)
	}
	log := self.env.logger
	store := self.env.engine.Store()

	var (
		initial    *ctxtree.Node
		toolRounds int
		last       error
	)
	for trial := 0; trial < self.retries; trial++ {
		if self.err != nil {
			return nil, self.err
		}
		req := engine.Request{
			Model:       m,
			Messages:    self.pendingMessages(),
			System:      self.system,
			Format:      format,
			Schema:      schema,
			Output:      outpath,
			Overwrite:   self.overwrite,
			Timestamp:   self.timestamp,
			MaxTokens:   self.maxTokens,
			Temperature: self.temperature,
		}
		if toolRounds < self.maxToolRounds || returnToolResults {
			req.Tools = self.tools
		}

		res, err := self.env.engine.Run(ctx, self.node, req)
		if err != nil {
			kind := core.KindOf(err)
			if !retryable[kind] {
				return nil, err
			}
			last = err
			self.env.metrics.RecordRetry(kind.String())
			log.Warn("flow.retry", "output", outpath, "attempt", trial+1, "kind", kind.String(), "error", util.Truncate(err.Error(), 200))
			continue
		}
		if initial == nil {
			initial = res.Context.Parent()
		}

		errs := res.Errors
		hasToolResults := res.ToolResults != nil
		if (!hasToolResults || returnToolResults) && len(errs) == 0 {
			output, verr := outputOf(res, format, schema)
			if verr == nil && returnToolResults && toolResultsOf(res) == nil {
				verr = &core.OutputValidationError{Output: res.Artifact.Text(), Err: errors.New("no tool calls and no tool_results")}
			}
			if verr == nil {
				final := res.Context
				if split := final.Parent(); split != initial {
					if final, err = final.Reparent(split, initial); err != nil {
						return nil, err
					}
				}
				log.Debug("flow.run.done", "output", outpath, "trials", trial+1, "tool_rounds", toolRounds, "cached", res.Cached)
				return &Result{Output: output, Context: final, Run: res, builder: b}, nil
			}
			errs = []error{verr}
		}

		if err := store.Delete(ctx, outpath); err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("flow: delete rejected output %s: %w", outpath, err)
		}

		if hasToolResults && !returnToolResults {
			toolRounds++
			log.Info("flow.tool_round", "output", outpath, "round", toolRounds, "calls", len(res.ToolCalls))
			self = self.Continue(res.Context).promptRaw(toolRoundPrompt)
			if toolRounds <= self.maxToolRounds {
				trial = -1
			}
			continue
		}

		last = errors.Join(errs...)
		kind := core.KindOf(last)
		self.env.metrics.RecordRetry(kind.String())
		log.Warn("flow.retry", "output", outpath, "attempt", trial+1, "kind", kind.String(), "error", util.Truncate(last.Error(), 200))
		self = self.Continue(res.Context).promptRaw(retryPrompt + last.Error())
	}

	if last == nil {
		last = fmt.Errorf("no valid output for %s", outpath)
	}
	return nil, &core.RetryExhaustedError{Trials: self.retries, Last: last}
}

// outputOf extracts and checks the output of a successful engine run.
func outputOf(res *engine.Result, format core.OutputFormat, schema map[string]any) (any, error) {
	if format != core.FormatJSON {
		return res.Artifact.Text(), nil
	}
	if res.Value == nil {
		return nil, &core.OutputValidationError{Output: res.Artifact.Text(), Err: errors.New("output is not valid JSON")}
	}
	if err := util.ValidateValue(res.Value, schema); err != nil {
		return nil, &core.OutputValidationError{Output: res.Artifact.Text(), Err: err}
	}
	return res.Value, nil
}

func decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
