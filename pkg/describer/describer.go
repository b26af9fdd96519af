package describer

import (
	"context"
	"fmt"
	"strings"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/processing"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// DefaultPrompt is the fixed instruction sent with every image
const DefaultPrompt = `Please describe this cat image in detail. Focus on the cat's appearance, pose, expression, surroundings, and any notable or amusing features. Be descriptive but concise.`

// DefaultMaxTokens bounds the description length
const DefaultMaxTokens = 300

// Config controls how images are prepared and which model describes them
type Config struct {
	Model       string
	Prompt      string
	MaxTokens   int
	SendFormat  string
	SendMaxDim  int
	SendQuality int
}

// Describer turns a CatImage into a Description using a vision model
type Describer struct {
	client    client.ModelClient
	processor *processing.Processor
	config    Config
}

// New creates a describer with default prompt and image settings
func New(c client.ModelClient, model string) *Describer {
	return NewWithConfig(c, Config{Model: model})
}

// NewWithConfig creates a describer; zero fields fall back to defaults
func NewWithConfig(c client.ModelClient, cfg Config) *Describer {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SendFormat == "" {
		cfg.SendFormat = "jpg"
	}
	if cfg.SendQuality <= 0 {
		cfg.SendQuality = 85
	}
	return &Describer{client: c, processor: processing.NewProcessor(), config: cfg}
}

// Describe sends exactly one request for img and returns the model's description
func (d *Describer) Describe(ctx context.Context, img *types.CatImage) (types.Description, error) {
	if img == nil || len(img.Data) == 0 {
		return "", fmt.Errorf("describe: %w", processing.ErrUnsupportedImage)
	}

	decoded, _, err := d.processor.DecodeImage(img.Data)
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	imgB64, err := d.processor.PrepareImageForModel(decoded, d.config.SendFormat, d.config.SendMaxDim, d.config.SendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}

	text, err := d.client.DescribeImage(ctx, types.VisionRequest{
		Model:     d.config.Model,
		Prompt:    d.config.Prompt,
		ImageB64:  imgB64,
		MIMEType:  processing.MIMEType(d.config.SendFormat),
		MaxTokens: d.config.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty description", client.ErrMalformed)
	}
	return types.Description(text), nil
}
