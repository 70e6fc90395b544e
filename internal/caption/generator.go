// Package caption turns a stored image into a one-line caption using a remote multimodal model.
package caption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jo-hoe/imagecaptioner/internal/llm"
	"github.com/jo-hoe/imagecaptioner/internal/mimetype"
)

// Instruction is sent after the image in every request.
const Instruction = "You are given an image. Generate a concise one-line caption that describes the main subject, context, and notable attributes."

var (
	// ErrIO marks failures reading the stored image.
	ErrIO = errors.New("image unreadable")
	// ErrRemoteAPI marks network, auth, quota and malformed-response failures of the model API.
	ErrRemoteAPI = errors.New("remote api failure")
)

// GenerationError is returned for every failed Generate call. It matches ErrIO or ErrRemoteAPI via errors.Is.
type GenerationError struct {
	Op   string
	Kind error
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate caption: %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Generator builds caption requests for a fixed model.
type Generator struct {
	log    *slog.Logger
	client llm.Client
	model  string
}

func NewGenerator(log *slog.Logger, client llm.Client, model string) *Generator {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Generator{log: log, client: client, model: model}
}

// Generate reads the image at imagePath and asks the model for a caption.
// declaredMime takes precedence over the extension of imagePath when non-empty.
func (g *Generator) Generate(ctx context.Context, imagePath, declaredMime string) (string, error) {
	mime := mimetype.Effective(declaredMime, imagePath)

	data, err := os.ReadFile(imagePath) // #nosec G304 - path comes from the uploader's scratch dir
	if err != nil {
		return "", &GenerationError{Op: "read image", Kind: ErrIO, Err: err}
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	g.log.Debug("image encoded", "mime", mime, "bytes", len(data))

	req := llm.Request{
		Model: g.model,
		Parts: []llm.Part{
			{InlineData: &llm.InlineData{MimeType: mime, Data: encoded}},
			{Text: Instruction},
		},
	}
	doc, err := g.client.GenerateContent(ctx, req)
	if err != nil {
		return "", &GenerationError{Op: "call model", Kind: ErrRemoteAPI, Err: err}
	}

	caption := Extract(doc)
	g.log.Debug("caption generated", "model", g.model, "length", len(caption))
	return caption, nil
}
