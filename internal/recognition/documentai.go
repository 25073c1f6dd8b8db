package recognition

import (
	"context"
	"fmt"
	"math"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// DocumentAIConfig identifies a Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	ProcessorID     string `yaml:"processor_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// DocumentAIRecognizer sends page images to Google Document AI.
type DocumentAIRecognizer struct {
	client *documentai.DocumentProcessorClient
	name   string
}

// NewDocumentAIRecognizer dials the regional endpoint once; the client is reused per page.
func NewDocumentAIRecognizer(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIRecognizer, error) {
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai project, location and processor are required")
	}

	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	return &DocumentAIRecognizer{
		client: client,
		name:   fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID),
	}, nil
}

// Close releases the underlying gRPC connection.
func (d *DocumentAIRecognizer) Close() error {
	return d.client.Close()
}

// Recognize processes one page image.
func (d *DocumentAIRecognizer) Recognize(ctx context.Context, img document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	mimeType := img.ContentType
	if mimeType == "" {
		mimeType = "image/png"
	}

	req := &documentaipb.ProcessRequest{
		Name: d.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  img.Data,
				MimeType: mimeType,
			},
		},
		SkipHumanReview: true,
	}
	if opts.Language != "" {
		req.ProcessOptions = &documentaipb.ProcessOptions{
			OcrConfig: &documentaipb.OcrConfig{
				Hints: &documentaipb.OcrConfig_Hints{LanguageHints: []string{opts.Language}},
			},
		}
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to process page %d: %w", img.Number, err)
	}

	return documentAnnotations(resp.GetDocument(), img.Number), nil
}

// documentAnnotations flattens a Document AI response: the document text with the
// page layout confidence first, then one block per token.
func documentAnnotations(doc *documentaipb.Document, pageNumber int) []document.PageAnnotation {
	if doc == nil || (doc.GetText() == "" && len(doc.GetPages()) == 0) {
		return nil
	}

	full := document.PageAnnotation{Text: doc.GetText(), PageNumber: pageNumber}
	annotations := []document.PageAnnotation{full}

	for _, page := range doc.GetPages() {
		dim := page.GetDimension()
		if layout := page.GetLayout(); layout != nil {
			annotations[0].Confidence = clamp01(float64(layout.GetConfidence()))
			annotations[0].Bounds = polyBounds(layout.GetBoundingPoly(), dim)
		}
		for _, token := range page.GetTokens() {
			layout := token.GetLayout()
			text := anchorText(doc.GetText(), layout.GetTextAnchor())
			if text == "" {
				continue
			}
			a := document.PageAnnotation{
				Text:       text,
				Confidence: clamp01(float64(layout.GetConfidence())),
				Bounds:     polyBounds(layout.GetBoundingPoly(), dim),
				PageNumber: pageNumber,
			}
			if langs := token.GetDetectedLanguages(); len(langs) > 0 {
				a.Locale = langs[0].GetLanguageCode()
			}
			annotations = append(annotations, a)
		}
	}
	return annotations
}

func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	var out []byte
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if start < 0 || end > len(text) || start >= end {
			continue
		}
		out = append(out, text[start:end]...)
	}
	return trimToken(string(out))
}

func trimToken(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// polyBounds takes min/max over the polygon, scaling normalized vertices by the
// page dimension when absolute vertices are absent.
func polyBounds(poly *documentaipb.BoundingPoly, dim *documentaipb.Document_Page_Dimension) document.Bounds {
	var xs, ys []float64
	if vs := poly.GetVertices(); len(vs) > 0 {
		for _, v := range vs {
			xs = append(xs, float64(v.GetX()))
			ys = append(ys, float64(v.GetY()))
		}
	} else {
		for _, v := range poly.GetNormalizedVertices() {
			xs = append(xs, float64(v.GetX())*float64(dim.GetWidth()))
			ys = append(ys, float64(v.GetY())*float64(dim.GetHeight()))
		}
	}
	if len(xs) == 0 {
		return document.Bounds{}
	}

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := range xs {
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}
	return document.Bounds{
		Left:   int(math.Round(minX)),
		Top:    int(math.Round(minY)),
		Right:  int(math.Round(maxX)),
		Bottom: int(math.Round(maxY)),
	}
}
