package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/cat-tagline/pkg/client"
	"github.com/menta2k/cat-tagline/pkg/types"
)

// DefaultURL is the hosted Ollama endpoint
const DefaultURL = "https://ollama.com"

// DefaultModel accepts both image and text input
const DefaultModel = "gemma3:27b"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// bearerTransport adds the API key to every request
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// NewClient creates a new Ollama client authenticating with apiKey
func NewClient(ollamaURL, apiKey string, timeout time.Duration) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = DefaultURL
	}
	// Parse the provided URL
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	// Create base URL from the provided URL (removing path like /api/chat)
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}
	if apiKey != "" {
		httpClient.Transport = &bearerTransport{token: apiKey, base: http.DefaultTransport}
	}

	// Create client with the specified URL, ignoring environment
	return &Client{client: api.NewClient(baseURL, httpClient)}, nil
}

func (c *Client) Name() string { return "ollama" }

// DescribeImage performs a single non-streaming chat with the image attached
func (c *Client) DescribeImage(ctx context.Context, req types.VisionRequest) (string, error) {
	// Decode base64 image to raw bytes
	imgBytes, err := base64.StdEncoding.DecodeString(req.ImageB64)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return c.chat(ctx, &api.ChatRequest{
		Model: req.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: req.Prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Options: options,
	})
}

// Complete performs a single non-streaming chat with an optional system message
func (c *Client) Complete(ctx context.Context, req types.TextRequest) (string, error) {
	var messages []api.Message
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}

	return c.chat(ctx, &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Options:  options,
	})
}

func (c *Client) chat(ctx context.Context, req *api.ChatRequest) (string, error) {
	streamFalse := false
	req.Stream = &streamFalse

	var responseContent string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", classify(err)
	}

	responseContent = strings.TrimSpace(responseContent)
	if responseContent == "" {
		return "", fmt.Errorf("%w: empty response from ollama", client.ErrMalformed)
	}
	return responseContent, nil
}

func classify(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if kind := client.KindForStatus(statusErr.StatusCode); kind != nil {
			return client.Wrap(kind, err)
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "unauthorized") {
		return client.Wrap(client.ErrAuth, err)
	}
	return fmt.Errorf("ollama chat error: %w", err)
}
