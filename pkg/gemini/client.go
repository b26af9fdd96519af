package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// DefaultModel handles both image and text input
const DefaultModel = "gemini-2.0-flash"

// Client calls the Gemini API through the genai SDK
type Client struct {
	models *genai.Models
}

// NewClient creates a Gemini API client. baseURL is only set in tests.
func NewClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing Gemini API key", client.ErrAuth)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{models: c.Models}, nil
}

func (c *Client) Name() string { return "gemini" }

// DescribeImage sends the prompt and the inline image in one user turn
func (c *Client) DescribeImage(ctx context.Context, req types.VisionRequest) (string, error) {
	imgBytes, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(req.Prompt),
			genai.NewPartFromBytes(imgBytes, mimeType),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	return c.generate(ctx, req.Model, contents, cfg)
}

// Complete sends the prompt with the system text as system instruction
func (c *Client) Complete(ctx context.Context, req types.TextRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	return c.generate(ctx, req.Model, genai.Text(req.Prompt), cfg)
}

func (c *Client) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if model == "" {
		model = DefaultModel
	}

	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			if kind := client.KindForStatus(apiErr.Code); kind != nil {
				return "", client.Wrap(kind, err)
			}
		}
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response from gemini", client.ErrMalformed)
	}
	return text, nil
}
