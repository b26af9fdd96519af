package tagline

import (
	"context"
	"fmt"
	"strings"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// SystemPrompt sets the caption style
const SystemPrompt = `You are a witty copywriter who creates hilarious, clever taglines for cat photos. Your taglines should be punny, relatable, and capture the essence of internet cat humor. Keep them under 20 words and make them memorable.`

const userPromptFormat = "Based on this cat image description, create a funny tagline:\n\n%s\n\nMake it punny and internet-cat-meme worthy!"

const (
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.9
)

// Generator writes a one-line caption for a Description
type Generator struct {
	client      client.ModelClient
	model       string
	maxTokens   int
	temperature float64
}

// Config controls the text model request
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// New creates a generator using model on c
func New(c client.ModelClient, model string) *Generator {
	return NewWithConfig(c, Config{Model: model})
}

// NewWithConfig creates a generator; zero fields fall back to defaults
func NewWithConfig(c client.ModelClient, cfg Config) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return &Generator{
		client:      c,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Generate sends exactly one request and returns the cleaned caption
func (g *Generator) Generate(ctx context.Context, description types.Description) (types.Tagline, error) {
	if strings.TrimSpace(string(description)) == "" {
		return "", fmt.Errorf("generate: empty description")
	}

	text, err := g.client.Complete(ctx, types.TextRequest{
		Model:       g.model,
		System:      SystemPrompt,
		Prompt:      fmt.Sprintf(userPromptFormat, description),
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", err
	}

	tagline := Clean(text)
	if tagline == "" {
		return "", fmt.Errorf("%w: empty tagline", client.ErrMalformed)
	}
	return types.Tagline(tagline), nil
}

// Clean keeps the first non-empty line and strips wrapping quotes
func Clean(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for {
			trimmed := strings.TrimSpace(trimQuotes(line))
			if trimmed == line {
				break
			}
			line = trimmed
		}
		if line == "" {
			continue
		}
		return line
	}
	return ""
}

func trimQuotes(s string) string {
	// single quotes are left alone, a caption may start with an apostrophe
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"*", "*"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return s[len(p[0]) : len(s)-len(p[1])]
		}
	}
	return s
}
