package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/llmflow/core"
	"github.com/hupe1980/llmflow/internal/util"
	"github.com/hupe1980/llmflow/model"
)

// Embedding returns the embedding vector of text.
func (b Builder) Embedding(ctx context.Context, text string) ([]float64, error) {
	if b.err != nil {
		return nil, b.err
	}
	m, err := b.resolveModel()
	if err != nil {
		return nil, err
	}
	embedder, ok := m.(model.Embedder)
	if !ok || !m.Supports(model.CapabilityEmbeddings) {
		return nil, fmt.Errorf("flow: model %s does not support embeddings: %w", m.Info().Name, model.ErrUnsupported)
	}
	return embedder.Embed(ctx, text)
}

// TTS synthesizes speech. The audio is cached in the artifact store under
// "tts-<hash>.<format>" where the hash covers the complete request, so
// repeated calls return the stored artifact.
func (b Builder) TTS(ctx context.Context, req model.SpeechRequest) (*core.Artifact, error) {
	if b.err != nil {
		return nil, b.err
	}
	m, err := b.resolveModel()
	if err != nil {
		return nil, err
	}
	speaker, ok := m.(model.Speaker)
	if !ok || !m.Supports(model.CapabilitySpeech) {
		return nil, fmt.Errorf("flow: model %s does not support speech: %w", m.Info().Name, model.ErrUnsupported)
	}

	req = req.WithDefaults()
	hash, err := util.HashJSON(req)
	if err != nil {
		return nil, err
	}
	name := "tts-" + hash + "." + req.Format

	store := b.env.engine.Store()
	if a, err := store.Latest(ctx, name); err == nil {
		b.env.logger.Debug("flow.tts.cached", "output", name)
		return a, nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	audio, err := speaker.Speak(ctx, req)
	if err != nil {
		return nil, &core.ModelCallError{Model: m.Info().Name, Err: err}
	}
	a := core.NewArtifact(name, audio, core.ContentBinary)
	md, err := store.Save(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("flow: save speech %s: %w", name, err)
	}
	a.Metadata = *md
	b.env.metrics.RecordArtifactSaved(string(core.ContentBinary))
	b.env.logger.Info("flow.tts.saved", "output", name, "size_bytes", md.SizeBytes)
	return &a, nil
}

// Transcribe converts an audio artifact to text. The audio format is mp3
// when the artifact name mentions ".mp3" and wav otherwise.
func (b Builder) Transcribe(ctx context.Context, audio *core.Artifact, prompt string) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if audio == nil || len(audio.Content) == 0 {
		return "", fmt.Errorf("flow: invalid audio artifact")
	}
	m, err := b.resolveModel()
	if err != nil {
		return "", err
	}
	transcriber, ok := m.(model.Transcriber)
	if !ok || !m.Supports(model.CapabilityTranscription) {
		return "", fmt.Errorf("flow: model %s does not support transcription: %w", m.Info().Name, model.ErrUnsupported)
	}

	format := "wav"
	if strings.Contains(audio.Metadata.Name, ".mp3") {
		format = "mp3"
	}
	text, err := transcriber.Transcribe(ctx, model.TranscriptionRequest{Audio: audio.Content, Format: format, Prompt: prompt})
	if err != nil {
		return "", &core.ModelCallError{Model: m.Info().Name, Err: err}
	}
	return text, nil
}
