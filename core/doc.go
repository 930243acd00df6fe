// Package core provides the foundational domain types and contracts shared by
// every llmflow package. It defines:
//
//   - Messages and their typed parts (text, image) plus tool call references
//   - Artifacts (named, versioned, timestamped outputs) and the ArtifactStore contract
//   - Overwrite policies and output formats that drive the cache decision
//   - A logical Clock handing out non-decreasing artifact timestamps
//   - The error taxonomy and KindOf classifier consumed by retry policies
//   - ToolContext, the constrained surface handed to tool implementations
//
// Concrete behaviour (stores, engine, builder, search) lives in sibling
// packages so that this package stays dependency free and cycle safe.
package core
