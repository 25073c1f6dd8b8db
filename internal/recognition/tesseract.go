/**
 * Tesseract backend
 *
 * Local, offline recognition through gosseract. Word boxes become blocks with
 * Tesseract's 0-100 confidence rescaled to [0,1].
 */

package recognition

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// Language is the default traineddata name, e.g. "eng".
	Language string
	// EnhancedDPI is passed as user_defined_dpi when enhance_resolution is requested.
	EnhancedDPI int
}

// TesseractRecognizer handles OCR using Tesseract
type TesseractRecognizer struct {
	language    string
	enhancedDPI int
}

// NewTesseractRecognizer creates a new Tesseract recognizer
func NewTesseractRecognizer(cfg TesseractConfig) *TesseractRecognizer {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.EnhancedDPI <= 0 {
		cfg.EnhancedDPI = 300
	}
	return &TesseractRecognizer{language: cfg.Language, enhancedDPI: cfg.EnhancedDPI}
}

// Recognize performs OCR on one page image.
func (t *TesseractRecognizer) Recognize(ctx context.Context, img document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(tesseractLanguage(opts.Language, t.language)); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if opts.DetectOrientation {
		if err := client.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
			return nil, fmt.Errorf("failed to enable orientation detection: %w", err)
		}
	}
	if opts.EnhanceResolution {
		if err := client.SetVariable("user_defined_dpi", fmt.Sprint(t.enhancedDPI)); err != nil {
			return nil, fmt.Errorf("failed to set dpi: %w", err)
		}
	}

	if err := client.SetImageFromBytes(img.Data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract word boxes failed: %w", err)
	}

	return tesseractAnnotations(text, boxes, img.Number), nil
}

// tesseractAnnotations builds the full-text annotation followed by one block per word.
func tesseractAnnotations(text string, boxes []gosseract.BoundingBox, page int) []document.PageAnnotation {
	if strings.TrimSpace(text) == "" && len(boxes) == 0 {
		return nil
	}

	annotations := make([]document.PageAnnotation, 0, len(boxes)+1)
	annotations = append(annotations, document.PageAnnotation{PageNumber: page, Text: text})

	var (
		union image.Rectangle
		sum   float64
		count int
	)
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		conf := clamp01(box.Confidence / 100)
		annotations = append(annotations, document.PageAnnotation{
			Text:       word,
			Confidence: conf,
			Bounds:     boundsFromRect(box.Box),
			PageNumber: page,
		})
		union = union.Union(box.Box)
		sum += conf
		count++
	}

	if count > 0 {
		annotations[0].Confidence = sum / float64(count)
	}
	annotations[0].Bounds = boundsFromRect(union)
	return annotations
}

var isoToTesseract = map[string]string{
	"en": "eng", "de": "deu", "fr": "fra", "es": "spa",
	"it": "ita", "pt": "por", "nl": "nld", "pl": "pol",
}

func tesseractLanguage(requested, fallback string) string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		return fallback
	}
	if code, ok := isoToTesseract[requested]; ok {
		return code
	}
	return requested
}

func boundsFromRect(r image.Rectangle) document.Bounds {
	return document.Bounds{Left: r.Min.X, Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
