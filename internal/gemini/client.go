// Package gemini provides the generative model backend using the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"proactive/internal/suggest"

	"google.golang.org/genai"
)

// Ensure Client implements the interface.
var _ suggest.Model = (*Client)(nil)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Config holds configuration for the Gemini client.
type Config struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the model identifier (default: gemini-2.0-flash).
	Model string

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL string

	// HTTPClient overrides the transport. Used by tests.
	HTTPClient *http.Client
}

// Client generates suggestions with a Gemini model.
type Client struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// replySchema mirrors suggest.Reply.
var replySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"status": {
			Type: genai.TypeString,
			Enum: []string{suggest.StatusSuggestions, suggest.StatusNothing},
		},
		"suggestions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"category": {Type: genai.TypeString, Enum: []string{"Agenda", "Email", "Drive", "Geral"}},
					"text":     {Type: genai.TypeString},
				},
				Required: []string{"category", "text"},
			},
		},
	},
	Required: []string{"status", "suggestions"},
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, logger *slog.Logger, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	logger.Info("Gemini client initialized.", "model", cfg.Model)
	return &Client{client: client, model: cfg.Model, logger: logger}, nil
}

// ModelName returns the model identifier in use.
func (c *Client) ModelName() string { return c.model }

// Generate sends the prompt and returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, req suggest.Request) (string, error) {
	var gc *genai.GenerateContentConfig
	if req.Structured {
		gc = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   replySchema,
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), gc)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		c.logger.Warn("Gemini returned no candidates.")
		return "", nil
	}
	return resp.Text(), nil
}
