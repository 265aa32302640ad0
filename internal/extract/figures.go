package extract

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/fieldscope/manualqa/internal/model"
)

// captionPattern matches figure caption lines like "Figure 3" or "Fig. 12:".
var captionPattern = regexp.MustCompile(`(?i)^(figure|fig\.)\s*\d+`)

// IsFigureCaption reports whether a line opens with a figure label.
func IsFigureCaption(line string) bool {
	return captionPattern.MatchString(strings.TrimSpace(line))
}

// FigureCaptions returns the caption lines found in page text, trimmed.
func FigureCaptions(pageText string) []string {
	var captions []string
	for _, line := range strings.Split(pageText, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && IsFigureCaption(trimmed) {
			captions = append(captions, trimmed)
		}
	}
	return captions
}

// NormalizeRegions converts raster-image blocks to figure regions with
// bbox coordinates normalized to [0,1] and rounded to 4 decimals.
// Figure ids follow fig_<doc>_p<page:04d>_<idx:03d>.
func NormalizeRegions(blocks []model.ImageBlock, pageWidth, pageHeight float64, docID string, pageNumber int) []model.FigureRegion {
	if pageWidth <= 0 || pageHeight <= 0 {
		return nil
	}
	regions := make([]model.FigureRegion, 0, len(blocks))
	for idx, b := range blocks {
		regions = append(regions, model.FigureRegion{
			FigureID:   fmt.Sprintf("fig_%s_p%04d_%03d", docID, pageNumber, idx),
			PageNumber: pageNumber,
			BBox: [4]float64{
				round4(b.X0 / pageWidth),
				round4(b.Y0 / pageHeight),
				round4(b.X1 / pageWidth),
				round4(b.Y1 / pageHeight),
			},
		})
	}
	return regions
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// CompactLen returns the length of text with all whitespace removed.
// Used by the OCR gate: pages with fewer than the configured number of
// compact characters go through OCR.
func CompactLen(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v':
		default:
			n++
		}
	}
	return n
}
