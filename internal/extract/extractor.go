package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/murmurhq/murmur/internal/ollama"
	"github.com/murmurhq/murmur/internal/storage"
)

const extractionTimeout = 180 * time.Second

// Generator is the slice of the ollama client the extractor needs.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, jsonFormat bool, opts *ollama.Options) (string, error)
}

// Extractor turns note content into a validated extraction Result.
type Extractor struct {
	client Generator
	model  string
}

func NewExtractor(client Generator, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract runs the model over the note content. It never returns an error:
// any failure, from transport to malformed JSON, degrades to the safe-empty
// result so the note itself is still recorded.
func (e *Extractor) Extract(ctx context.Context, content string, pending []storage.ActionItem, now time.Time) Result {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	prompt := BuildPrompt(content, pending, now)
	raw, err := e.client.Generate(ctx, e.model, prompt, true, &ollama.Options{
		Temperature: 0.1,
		NumCtx:      4096,
	})
	if err != nil {
		slog.Warn("extraction call failed, using safe empty result", "error", err)
		return SafeEmpty()
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("extraction returned malformed JSON, using safe empty result", "error", err)
		return SafeEmpty()
	}

	return parsed.validate()
}
