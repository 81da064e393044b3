// Package suggest turns a context bundle into a prompt, asks a generative
// model for suggestions and decides how the answer is presented.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"proactive/internal/models"
)

// ErrModelUnavailable indicates the generative model could not be initialized.
var ErrModelUnavailable = errors.New("generative model unavailable")

// Request is one completion request.
type Request struct {
	Prompt string
	// Structured asks for a JSON reply matching Reply.
	Structured bool
}

// Model is a text-completion backend.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Item is one suggestion of a structured reply.
type Item struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// Reply is the structured answer requested from models that support JSON output.
type Reply struct {
	Status      string `json:"status"`
	Suggestions []Item `json:"suggestions"`
}

// Reply statuses.
const (
	StatusSuggestions = "suggestions"
	StatusNothing     = "nothing"
)

var categories = map[string]string{
	"agenda": "Agenda",
	"email":  "Email",
	"drive":  "Drive",
	"geral":  "Geral",
}

// Generator produces a suggestion for a context bundle.
type Generator struct {
	model      Model
	logger     *slog.Logger
	structured bool
}

// NewGenerator creates a Generator. A nil model makes it unavailable.
func NewGenerator(logger *slog.Logger, model Model, structured bool) *Generator {
	return &Generator{model: model, logger: logger, structured: structured}
}

// Ready reports whether a model is available.
func (g *Generator) Ready() bool {
	return g.model != nil
}

// Analyze asks the model for suggestions about bundle. It never fails: an
// unavailable model or a failed call yield one of the error markers.
func (g *Generator) Analyze(ctx context.Context, bundle models.ContextBundle) string {
	if !g.Ready() {
		g.logger.Warn("Model not available, cannot generate a suggestion.", "error", ErrModelUnavailable)
		return ModelUnavailable
	}

	g.logger.Info("Sending context to the model.",
		"events", len(bundle.Events), "emails", len(bundle.Emails), "files", len(bundle.Files))

	text, err := g.model.Generate(ctx, Request{Prompt: BuildPrompt(bundle, g.structured), Structured: g.structured})
	if err != nil {
		g.logger.Error("Model call failed.", "error", err)
		return GenerationFailed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		g.logger.Warn("Model returned an empty response.")
		return GenerationFailed
	}

	if g.structured {
		rendered, err := RenderReply(text)
		if err == nil {
			return rendered
		}
		g.logger.Warn("Could not decode structured reply, using raw text.", "error", err)
	}
	return text
}

// RenderReply decodes a JSON Reply and renders it as bullet lines, or as the
// NothingToReport sentinel when it holds no suggestion.
func RenderReply(raw string) (string, error) {
	var reply Reply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", fmt.Errorf("invalid reply: %w", err)
	}

	var lines []string
	for _, item := range reply.Suggestions {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		category, ok := categories[strings.ToLower(strings.TrimSpace(item.Category))]
		if !ok {
			category = "Geral"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", category, text))
	}

	switch {
	case len(lines) > 0:
		return strings.Join(lines, "\n"), nil
	case reply.Status == StatusNothing || reply.Status == StatusSuggestions:
		return NothingToReport, nil
	default:
		return "", fmt.Errorf("unknown reply status %q", reply.Status)
	}
}
