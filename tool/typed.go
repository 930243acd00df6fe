package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
)

// NewTypedTool exposes a function taking a typed argument struct. The schema
// is derived from Args and validated arguments are decoded with mapstructure
// using the json tags.
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum := NewTypedTool("sum", "Adds numbers", func(_ *core.ToolContext, in SumArgs) (float64, error) {
//	  return in.A + in.B, nil
//	})
func NewTypedTool[Args any, Out any](
	name, description string,
	fn func(toolCtx *core.ToolContext, args Args) (Out, error),
	opts ...FunctionOption,
) *FunctionTool {
	var zero Args
	schema := util.CreateSchema(zero)
	return NewFunctionTool(name, description, schema, func(tc *core.ToolContext, raw map[string]any) (any, error) {
		var args Args
		if err := Decode(raw, &args); err != nil {
			return nil, &ToolError{Tool: name, CallID: tc.FunctionCallID(), Message: err.Error(), Code: CodeValidation}
		}
		return fn(tc, args)
	}, opts...)
}

// Decode converts a generic JSON object into out using json tags and weak
// typing (float64 to int and similar conversions).
func Decode(in any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
