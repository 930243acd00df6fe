// Package model defines the provider-agnostic abstractions for talking to
// language models.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Describe optional capabilities (images, json mode, embeddings, speech)
//     so callers can check them before building a request
//   - Resolve named model configurations into cached, shareable clients
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (engine, flows) remain decoupled from vendor SDKs.
package model
