package llm

import (
	"context"
	"encoding/base64"
	"strings"

	qaerrors "github.com/fieldscope/manualqa/internal/errors"
	"github.com/fieldscope/manualqa/internal/extract"
)

const captionSystemPrompt = `You summarize a page image from an equipment manual.
Describe diagrams, wiring, terminal labels, and any visible parameter values in
2-4 sentences. State only what is visible.`

// VisionCaptioner summarizes page renders with a vision model.
type VisionCaptioner struct {
	client Client
	model  string
}

// NewVisionCaptioner creates a captioner bound to a vision model name.
func NewVisionCaptioner(client Client, model string) *VisionCaptioner {
	return &VisionCaptioner{client: client, model: model}
}

// PageInsights summarizes the page's embedded image for the ingestion
// pipeline. Pages without an extractable image yield empty insights,
// which refunds the vision budget upstream.
func (v *VisionCaptioner) PageInsights(ctx context.Context, pdfPath string, pageNumber int) (string, error) {
	image, err := extract.PageImage(pdfPath, pageNumber)
	if err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", nil
	}
	return v.Caption(ctx, image, "")
}

// Caption summarizes one page image. hint carries nearby page text to
// steer the model; it may be empty.
func (v *VisionCaptioner) Caption(ctx context.Context, image []byte, hint string) (string, error) {
	if len(image) == 0 {
		return "", qaerrors.New(qaerrors.ErrCodeVisionFailed, "caption called with empty image", nil)
	}
	prompt := "Summarize this manual page."
	if hint = strings.TrimSpace(hint); hint != "" {
		prompt += " Nearby text: " + hint
	}
	out, err := v.client.Chat(ctx, []Message{
		{Role: "system", Content: captionSystemPrompt},
		{Role: "user", Content: prompt, Images: []string{base64.StdEncoding.EncodeToString(image)}},
	}, ChatOptions{Model: v.model, Temperature: 0.2})
	if err != nil {
		return "", qaerrors.New(qaerrors.ErrCodeVisionFailed, "vision caption failed", err)
	}
	return strings.TrimSpace(out), nil
}
