package mock

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/llm"
)

func imageRequest(data []byte) llm.Request {
	return llm.Request{
		Model: "mock",
		Parts: []llm.Part{
			{InlineData: &llm.InlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(data)}},
			{Text: "caption"},
		},
	}
}

func TestMockLLM_GenerateContent(t *testing.T) {
	c := New(config.MockSettings{Delay: 0, Prefix: "MockPrefix"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doc, err := c.GenerateContent(ctx, imageRequest([]byte("fakeimagedata")))
	if err != nil {
		t.Fatalf("GenerateContent error: %v", err)
	}
	text, _ := doc.(map[string]any)["text"].(string)
	if !strings.Contains(text, "MockPrefix") {
		t.Fatalf("caption missing prefix, got: %q", text)
	}
	if !strings.Contains(text, "image/png") || !strings.Contains(text, "13 bytes") {
		t.Fatalf("caption missing image info, got: %q", text)
	}
}

func TestMockLLM_DistinctImagesDistinctCaptions(t *testing.T) {
	c := New(config.MockSettings{Prefix: "x"})
	a, _ := c.GenerateContent(context.Background(), imageRequest([]byte("aaaa")))
	b, _ := c.GenerateContent(context.Background(), imageRequest([]byte("bbbb")))
	if a.(map[string]any)["text"] == b.(map[string]any)["text"] {
		t.Fatalf("captions should differ for different content")
	}
}

func TestMockLLM_RequiresImage(t *testing.T) {
	c := New(config.MockSettings{Prefix: "x"})
	_, err := c.GenerateContent(context.Background(), llm.Request{Parts: []llm.Part{{Text: "only text"}}})
	if err == nil {
		t.Fatalf("expected error without inline image")
	}
}

func TestMockLLM_RespectsContextCancel(t *testing.T) {
	c := New(config.MockSettings{Delay: 200 * time.Millisecond, Prefix: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.GenerateContent(ctx, imageRequest([]byte("x")))
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
}
