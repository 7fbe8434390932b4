package service

import (
	"context"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/utils"
	"github.com/Aashish23092/invoice-flow/utils/imageproc"
)

// OCRPipeline turns an invoice image into an OcrResult. It never returns an
// error: every failure degrades to a partial or empty result and is logged.
type OCRPipeline struct {
	recognizer Recognizer
	opts       imageproc.Options
	logger     *zap.Logger
}

func NewOCRPipeline(recognizer Recognizer, opts imageproc.Options, logger *zap.Logger) *OCRPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OCRPipeline{recognizer: recognizer, opts: opts, logger: logger}
}

// Run decodes the image at path and processes it.
func (p *OCRPipeline) Run(ctx context.Context, path string, templates []dto.TemplateHint) dto.OcrResult {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Warn("ocr: image could not be decoded", zap.String("path", path), zap.Error(err))
		return dto.EmptyOcrResult()
	}
	return p.RunImage(ctx, img, templates)
}

// RunImage processes an already decoded image.
func (p *OCRPipeline) RunImage(ctx context.Context, img image.Image, templates []dto.TemplateHint) dto.OcrResult {
	rec, err := p.recognizer.Recognize(ctx, imageproc.Preprocess(img, p.opts))
	if err != nil {
		p.logger.Warn("ocr: recognition failed", zap.Error(err))
		return dto.EmptyOcrResult()
	}
	if strings.TrimSpace(rec.Text) == "" {
		p.logger.Info("ocr: no text recognized")
		return dto.EmptyOcrResult()
	}

	result := dto.OcrResult{
		RawText:    rec.Text,
		Confidence: AverageConfidence(rec.TokenConfidences),
	}

	tmpl, matched := utils.DetectTemplate(rec.Text, templates)
	if matched {
		id := tmpl.ID
		result.MatchedTemplateID = &id
		p.logger.Debug("ocr: template matched", zap.Int64("template_id", id), zap.String("template", tmpl.Name))
	}

	if matched && len(tmpl.Regions) > 0 {
		result.Fields = p.extractRegions(ctx, img, tmpl.Regions)
	} else {
		result.Fields = utils.ExtractInvoiceFields(rec.Text)
	}
	return result
}

// RunText handles documents that already carry a text layer. Regions cannot
// be cropped, so fields always come from the regex fallback.
func (p *OCRPipeline) RunText(text string, confidence float64, templates []dto.TemplateHint) dto.OcrResult {
	if strings.TrimSpace(text) == "" {
		return dto.EmptyOcrResult()
	}
	result := dto.OcrResult{
		RawText:    text,
		Confidence: confidence,
		Fields:     utils.ExtractInvoiceFields(text),
	}
	if tmpl, ok := utils.DetectTemplate(text, templates); ok {
		id := tmpl.ID
		result.MatchedTemplateID = &id
	}
	return result
}

// extractRegions recognizes each region on its own. A region that fails yields "".
func (p *OCRPipeline) extractRegions(ctx context.Context, img image.Image, regions map[string]dto.Region) map[string]string {
	names := make([]string, 0, len(regions))
	for name := range regions {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]string, len(regions))
	for _, name := range names {
		fields[name] = p.extractRegion(ctx, img, name, regions[name])
	}
	return fields
}

func (p *OCRPipeline) extractRegion(ctx context.Context, img image.Image, name string, region dto.Region) string {
	crop, err := imageproc.CropRegion(img, region)
	if err != nil {
		p.logger.Warn("ocr: region crop failed", zap.String("field", name), zap.Error(err))
		return ""
	}
	rec, err := p.recognizer.Recognize(ctx, imageproc.Preprocess(crop, p.opts))
	if err != nil {
		p.logger.Warn("ocr: region recognition failed", zap.String("field", name), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(rec.Text)
}

// AverageConfidence averages the positive token confidences and scales them to [0,1].
// Tokens at or below zero were not recognized and are left out.
func AverageConfidence(confidences []float64) float64 {
	var sum float64
	var n int
	for _, c := range confidences {
		if c > 0 {
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avg := sum / float64(n) / 100
	if avg > 1 {
		avg = 1
	}
	return avg
}
