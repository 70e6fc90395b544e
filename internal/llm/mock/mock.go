// Package mock provides an offline llm.Client for local runs and tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// Client answers every request with a caption derived from the inline image it received.
type Client struct {
	delay  time.Duration
	prefix string
}

func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

// GenerateContent returns {"text": "<prefix>: <mime>, <n> bytes, sha256 <8 hex>"} after the configured delay.
func (c *Client) GenerateContent(ctx context.Context, req llm.Request) (any, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var img *llm.InlineData
	for _, p := range req.Parts {
		if p.InlineData != nil {
			img = p.InlineData
			break
		}
	}
	if img == nil {
		return nil, fmt.Errorf("mock: request has no inline image")
	}
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, fmt.Errorf("mock: decode inline data: %w", err)
	}
	sum := sha256.Sum256(raw)
	return map[string]any{
		"text": fmt.Sprintf("%s: %s, %d bytes, sha256 %s", c.prefix, img.MimeType, len(raw), hex.EncodeToString(sum[:4])),
	}, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
