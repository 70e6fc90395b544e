// Package gemini calls the Gemini generateContent REST endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/imagecaptioner/internal/common"
	"github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
)

var _ llm.Client = (*Client)(nil)

const (
	providerName      = "gemini"
	apiVersion        = "v1beta"
	methodGenerate    = "generateContent"
	roleUser          = "user"
	errorSnippetLimit = 400

	// fieldText is the convenience field added to decoded responses, like the SDKs' text accessor.
	fieldText = "text"
)

// Client implements llm.Client against generativelanguage.googleapis.com (or a compatible base URL).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a Gemini client. A zero Timeout leaves the call bounded only by the caller's context.
func New(cfg config.GeminiSettings) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// GenerateContent posts the prompt parts as a single user turn and returns the decoded JSON reply.
func (c *Client) GenerateContent(ctx context.Context, req llm.Request) (any, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}
	u, err := url.JoinPath(c.baseURL, apiVersion, "models", req.Model+":"+methodGenerate)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}

	bodyBytes, err := json.Marshal(buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set(common.HeaderContentType, common.ContentTypeJSON)
	httpReq.Header.Set(common.HeaderGoogAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
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
	return withText(doc), nil
}

func buildRequestBody(req llm.Request) generateContentRequest {
	parts := make([]part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.InlineData != nil {
			parts = append(parts, part{InlineData: &inlineData{
				MimeType: p.InlineData.MimeType,
				Data:     p.InlineData.Data,
			}})
			continue
		}
		text := p.Text
		parts = append(parts, part{Text: &text})
	}
	return generateContentRequest{
		Contents: []content{{Role: roleUser, Parts: parts}},
	}
}

// withText adds a top-level "text" field holding the first candidate's text parts, thoughts excluded.
// Documents that already carry one, or have no text parts, are returned unchanged.
func withText(doc any) any {
	m, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	if _, exists := m[fieldText]; exists {
		return doc
	}
	candidates, _ := m["candidates"].([]any)
	if len(candidates) == 0 {
		return doc
	}
	first, _ := candidates[0].(map[string]any)
	cont, _ := first["content"].(map[string]any)
	parts, _ := cont["parts"].([]any)

	var sb strings.Builder
	for _, p := range parts {
		pm, _ := p.(map[string]any)
		if thought, _ := pm["thought"].(bool); thought {
			continue
		}
		if s, ok := pm[fieldText].(string); ok {
			sb.WriteString(s)
		}
	}
	if sb.Len() == 0 {
		return doc
	}
	m[fieldText] = sb.String()
	return m
}

// Gemini REST request types (camelCase as on the wire).

type generateContentRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       *string     `json:"text,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}
