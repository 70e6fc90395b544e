package aiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/imagecaptioner/internal/common"
	"github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	providerName = "aiproxy"

	// Auth
	authSchemeBearer = "Bearer"

	// Endpoints
	endpointChatCompletions = "v1/chat/completions"

	// Timeouts and limits
	defaultTimeout    = 60 * time.Second
	errorSnippetLimit = 400

	// Data URL constants
	dataURLPrefix    = "data:"
	dataURLBase64Sep = ";base64,"
)

// Role represents the sender role for a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// PartType represents the type for a multimodal message part.
type PartType string

const (
	PartText     PartType = "text"
	PartImageURL PartType = "image_url"
)

// Client implements llm.Client by calling an OpenAI-compatible AI Proxy.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	system      string
	temperature *float32
	maxTokens   *int
}

// New creates a new AI Proxy LLM client. cfg.Model is used when the request names none.
func New(cfg config.AIProxySettings) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		system:      cfg.SystemPrompt,
		temperature: optionalFloat32(cfg.Temperature),
		maxTokens:   optionalInt(cfg.MaxTokens),
	}
}

// GenerateContent sends one chat completion with the prompt parts as the user message
// and returns the decoded completion JSON.
func (c *Client) GenerateContent(ctx context.Context, req llm.Request) (any, error) {
	reqBody := c.buildRequestBody(req)

	u, err := url.JoinPath(c.baseURL, endpointChatCompletions)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set(common.HeaderContentType, common.ContentTypeJSON)
	if strings.TrimSpace(c.apiKey) != "" {
		httpReq.Header.Set(common.HeaderAuthorization, authSchemeBearer+" "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &llm.StatusError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Body:       llm.Truncate(string(respBytes), errorSnippetLimit),
		}
	}

	var doc any
	if err := json.Unmarshal(respBytes, &doc); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return doc, nil
}

func (c *Client) buildRequestBody(req llm.Request) chatCompletionRequest {
	parts := make([]messagePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.InlineData != nil {
			parts = append(parts, messagePart{
				Type:     PartImageURL,
				ImageURL: &imageURL{URL: buildDataURL(p.InlineData)},
			})
			continue
		}
		text := p.Text
		parts = append(parts, messagePart{Type: PartText, Text: &text})
	}

	var msgs []chatMessage
	if sys := strings.TrimSpace(c.system); sys != "" {
		msgs = append(msgs, chatMessage{Role: RoleSystem, Content: sys})
	}
	msgs = append(msgs, chatMessage{Role: RoleUser, Content: parts})

	model := c.model
	if strings.TrimSpace(req.Model) != "" {
		model = req.Model
	}
	out := chatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if c.temperature != nil {
		out.Temperature = c.temperature
	}
	if c.maxTokens != nil {
		out.MaxTokens = c.maxTokens
	}
	return out
}

func buildDataURL(d *llm.InlineData) string {
	mt := strings.TrimSpace(d.MimeType)
	if mt == "" {
		mt = common.MimeOctetStream
	}
	return dataURLPrefix + mt + dataURLBase64Sep + d.Data
}

func optionalFloat32(v float32) *float32 {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

// OpenAI-compatible Chat Completions request types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    Role `json:"role"`
	Content any  `json:"content"` // string or []messagePart
}

type messagePart struct {
	Type     PartType  `json:"type"`                // "text" | "image_url"
	Text     *string   `json:"text,omitempty"`      // when Type == "text"
	ImageURL *imageURL `json:"image_url,omitempty"` // when Type == "image_url"
}

type imageURL struct {
	URL string `json:"url"`
}
