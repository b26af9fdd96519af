package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// DefaultModel is used for both the vision and the text request
const DefaultModel = "gpt-4o-mini"

var statusPattern = regexp.MustCompile(`status code: (\d{3})`)

// emptyResponseText is the message of the client's unexported sentinel raised
// when a reply carries no choices
const emptyResponseText = "empty response"

// Client talks to the OpenAI chat completions API (or a compatible server)
type Client struct {
	llm llms.Model
}

// NewClient creates an OpenAI client. baseURL may be empty for api.openai.com.
func NewClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts := []lcopenai.Option{
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(DefaultModel),
		lcopenai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}

	llm, err := lcopenai.New(opts...)
	if err != nil {
		if errors.Is(err, lcopenai.ErrMissingToken) {
			return nil, client.Wrap(client.ErrAuth, err)
		}
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &Client{llm: llm}, nil
}

func (c *Client) Name() string { return "openai" }

// DescribeImage sends the prompt and the image as a data URL in one user message
func (c *Client) DescribeImage(ctx context.Context, req types.VisionRequest) (string, error) {
	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	msgs := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(req.Prompt),
				llms.ImageURLPart("data:" + mimeType + ";base64," + req.ImageB64),
			},
		},
	}

	return c.generate(ctx, msgs, req.Model, req.MaxTokens, 0)
}

// Complete sends an optional system message followed by the user prompt
func (c *Client) Complete(ctx context.Context, req types.TextRequest) (string, error) {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	return c.generate(ctx, msgs, req.Model, req.MaxTokens, req.Temperature)
}

func (c *Client) generate(ctx context.Context, msgs []llms.MessageContent, model string, maxTokens int, temperature float64) (string, error) {
	var opts []llms.CallOption
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if temperature > 0 {
		opts = append(opts, llms.WithTemperature(temperature))
	}

	resp, err := c.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", classify(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", client.ErrMalformed)
	}

	content := strings.TrimSpace(resp.Choices[0].Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty content", client.ErrMalformed)
	}
	return content, nil
}

// classify maps langchaingo errors onto the shared failure kinds
func classify(err error) error {
	if errors.Is(err, lcopenai.ErrEmptyResponse) || strings.Contains(err.Error(), emptyResponseText) {
		return client.Wrap(client.ErrMalformed, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return client.Wrap(client.ErrMalformed, err)
	}

	// the client reports HTTP failures as "API returned unexpected status code: 401: ..."
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		if kind := client.KindForStatus(code); kind != nil {
			return client.Wrap(kind, err)
		}
	}

	return fmt.Errorf("openai request failed: %w", err)
}
