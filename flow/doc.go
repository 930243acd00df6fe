// Package flow provides the generation builder, an immutable fluent API on
// top of the execution engine.
//
// Every Builder method returns a modified copy, so partially configured
// builders can be shared and branched freely:
//
//	base := flow.New(func(o *flow.Options) {
//	    o.Engine = eng
//	    o.Models = clients
//	})
//	outline, err := base.
//	    System("You are a technical writer.").
//	    Prompt("Outline an article about Go generics.").
//	    Output("outline.md").
//	    Overwrite(core.OverwriteExact).
//	    Run(ctx)
//
// Run, Generate and UseTools drive a retry loop: invalid output is deleted
// and the model is asked to try again with the validation error appended to
// the conversation, a tool round continues the conversation with the tool
// results. On success the retries are pruned from the returned context so
// only the initial request and the final answer remain.
//
// Configuration errors (unknown model, unsupported capability) are sticky:
// they are recorded by the builder method and returned by the next run
// operation.
package flow
