package service

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/utils"
	"github.com/Aashish23092/invoice-flow/utils/epcqr"
)

// textLayerConfidence is reported for text read from a PDF text layer.
const textLayerConfidence = 1.0

// ProcessorDeps wires an InvoiceProcessor.
type ProcessorDeps struct {
	Store     InvoiceStore
	Templates TemplateCatalog
	Pipeline  *OCRPipeline
	PDF       PDFProcessor
	QR        *QRReader
	Anomaly   *AnomalyDetector
	Priority  *PriorityScorer
	Delay     *DelayPredictor
	Router    *WorkflowRouter
	Locker    Locker
	// MergeMinConfidence is the OCR confidence below which extracted fields are not merged.
	MergeMinConfidence float64
	Now                func() time.Time
	Logger             *zap.Logger
}

// InvoiceProcessor runs OCR, scoring and routing for one invoice.
type InvoiceProcessor struct {
	deps ProcessorDeps
}

func NewInvoiceProcessor(deps ProcessorDeps) *InvoiceProcessor {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &InvoiceProcessor{deps: deps}
}

func lockKey(invoiceID int64) string {
	return fmt.Sprintf("invoice:%d", invoiceID)
}

// ProcessNewInvoice runs the full pipeline. Each stage commits atomically;
// a failing stage marks the invoice's processing status as failed.
func (p *InvoiceProcessor) ProcessNewInvoice(ctx context.Context, invoiceID int64) (dto.ProcessingReport, error) {
	log := p.deps.Logger.With(zap.Int64("invoice_id", invoiceID))

	unlock, err := p.deps.Locker.Lock(ctx, lockKey(invoiceID))
	if err != nil {
		return dto.ProcessingReport{}, eris.Wrapf(err, "processor: lock invoice %d", invoiceID)
	}
	defer unlock()

	inv, err := p.deps.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return dto.ProcessingReport{}, eris.Wrapf(err, "processor: load invoice %d", invoiceID)
	}

	report := dto.ProcessingReport{
		InvoiceID:       invoiceID,
		Status:          dto.ProcessingRunning,
		Recommendations: []string{},
		NextActions:     []string{},
		ProcessedAt:     p.deps.Now(),
	}

	ocrFailed := false
	if inv.FilePath == "" {
		report.AddStep("ocr", dto.StepSkipped, "no document attached")
	} else {
		result, payment := p.RecognizeDocument(ctx, inv)
		report.OCR = &result
		inv, err = p.deps.Store.UpdateInvoice(ctx, invoiceID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
			return p.ApplyOCR(cur, result, payment), nil
		})
		if err != nil {
			return p.fail(ctx, report, "ocr", err)
		}
		ocrFailed = result.Failed()
		if ocrFailed {
			report.AddStep("ocr", dto.StepFailed, "no text recognized")
		} else {
			report.AddStep("ocr", dto.StepCompleted, fmt.Sprintf("confidence %.2f", result.Confidence))
		}
	}

	data := inv.Data()
	anomaly := p.deps.Anomaly.Detect(ctx, data)
	priority := p.deps.Priority.Score(data)
	delay := p.deps.Delay.Predict(ctx, data)
	report.Anomaly, report.Priority, report.Delay = &anomaly, &priority, &delay
	report.AddStep("anomaly", dto.StepCompleted, fmt.Sprintf("risk score %d (%s)", anomaly.RiskScore, anomaly.RiskLevel))
	report.AddStep("priority", dto.StepCompleted, fmt.Sprintf("priority score %d (%s)", priority.PriorityScore, priority.PriorityLevel))
	report.AddStep("delay", dto.StepCompleted, fmt.Sprintf("delay probability %.2f", delay.DelayProbability))

	_, err = p.deps.Store.UpdateInvoice(ctx, invoiceID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
		return p.applyScores(cur, anomaly, priority), nil
	})
	if err != nil {
		return p.fail(ctx, report, "scoring", err)
	}

	decision, err := p.deps.Router.Route(ctx, invoiceID, priority, anomaly)
	if err != nil {
		return p.fail(ctx, report, "routing", err)
	}
	report.Routing = &decision
	report.AddStep("routing", dto.StepCompleted, decision.Reasoning)

	report.Recommendations = buildRecommendations(anomaly, priority, delay)
	report.NextActions = buildNextActions(decision, ocrFailed)
	report.Status = dto.ProcessingCompleted
	log.Info("invoice processed",
		zap.Int("risk_score", anomaly.RiskScore),
		zap.Int("priority_score", priority.PriorityScore),
		zap.Bool("auto_approved", decision.AutoApproved),
	)
	return report, nil
}

func (p *InvoiceProcessor) fail(ctx context.Context, report dto.ProcessingReport, step string, cause error) (dto.ProcessingReport, error) {
	report.AddStep(step, dto.StepFailed, cause.Error())
	report.Status = dto.ProcessingFailed
	_, err := p.deps.Store.UpdateInvoice(ctx, report.InvoiceID, func(cur *dto.Invoice) ([]dto.HistoryRecord, error) {
		cur.AIProcessingStatus = dto.ProcessingFailed
		return nil, nil
	})
	if err != nil {
		p.deps.Logger.Error("processor: could not record failure", zap.Int64("invoice_id", report.InvoiceID), zap.Error(err))
	}
	return report, eris.Wrapf(cause, "processor: %s", step)
}

// RecognizeDocument runs OCR on the invoice's attachment. PDFs with a text
// layer skip recognition. A payment QR code is read from raster documents.
func (p *InvoiceProcessor) RecognizeDocument(ctx context.Context, inv dto.Invoice) (dto.OcrResult, *epcqr.Payment) {
	log := p.deps.Logger.With(zap.Int64("invoice_id", inv.ID), zap.String("path", inv.FilePath))

	var templates []dto.TemplateHint
	if p.deps.Templates != nil {
		all, err := p.deps.Templates.ListTemplates(ctx)
		if err != nil {
			log.Warn("ocr: template catalog unavailable", zap.Error(err))
		}
		templates = utils.CandidateTemplates(all, inv.VendorName)
	}

	var img image.Image
	if strings.EqualFold(filepath.Ext(inv.FilePath), ".pdf") {
		data, err := os.ReadFile(inv.FilePath)
		if err != nil {
			log.Warn("ocr: document unreadable", zap.Error(err))
			return dto.EmptyOcrResult(), nil
		}
		if p.deps.PDF == nil {
			log.Warn("ocr: no PDF processor configured")
			return dto.EmptyOcrResult(), nil
		}
		if text, err := p.deps.PDF.ExtractText(data); err == nil && strings.TrimSpace(text) != "" {
			return p.deps.Pipeline.RunText(text, textLayerConfidence, templates), nil
		}
		img, err = p.deps.PDF.FirstPageImage(data)
		if err != nil {
			log.Warn("ocr: PDF has no usable page image", zap.Error(err))
			return dto.EmptyOcrResult(), nil
		}
	} else {
		var err error
		img, err = imaging.Open(inv.FilePath, imaging.AutoOrientation(true))
		if err != nil {
			log.Warn("ocr: image could not be decoded", zap.Error(err))
			return dto.EmptyOcrResult(), nil
		}
	}

	result := p.deps.Pipeline.RunImage(ctx, img, templates)
	return result, p.readPayment(img, log)
}

func (p *InvoiceProcessor) readPayment(img image.Image, log *zap.Logger) *epcqr.Payment {
	if p.deps.QR == nil {
		return nil
	}
	payment, err := p.deps.QR.ReadPayment(img)
	if err != nil {
		log.Debug("ocr: no payment QR code", zap.Error(err))
		return nil
	}
	return payment
}

// ApplyOCR merges an OCR result into inv. OCR metadata is always recorded;
// extracted values only fill fields that are still empty.
func (p *InvoiceProcessor) ApplyOCR(inv *dto.Invoice, result dto.OcrResult, payment *epcqr.Payment) []dto.HistoryRecord {
	changed := map[string]string{}

	inv.OCRRawText = result.RawText
	inv.OCRConfidence = result.Confidence
	inv.OCRTemplateID = result.MatchedTemplateID

	if !result.Failed() && result.Confidence >= p.deps.MergeMinConfidence {
		p.mergeFields(inv, result.Fields, changed)
	}
	if payment != nil {
		mergePayment(inv, payment, changed)
	}

	if inv.DueDate == nil && inv.InvoiceDate != nil {
		terms := inv.PaymentTermsDays
		if terms <= 0 {
			terms = dto.DefaultPaymentTermsDays
		}
		due := inv.InvoiceDate.AddDays(terms)
		inv.DueDate = &due
		changed["due_date"] = due.String()
	}

	comment := fmt.Sprintf("OCR confidence %.2f", result.Confidence)
	if result.MatchedTemplateID != nil {
		comment += fmt.Sprintf(", template %d", *result.MatchedTemplateID)
	}
	return []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryOCRProcessed, dto.SystemActor, comment, p.deps.Now(), nil, changed)}
}

func (p *InvoiceProcessor) mergeFields(inv *dto.Invoice, fields map[string]string, changed map[string]string) {
	if v := fields[dto.FieldInvoiceNumber]; inv.Number == "" && v != "" {
		inv.Number = v
		changed["invoice_number"] = v
	}
	if v := fields[dto.FieldVendor]; inv.VendorName == "" && v != "" {
		inv.VendorName = v
		changed["vendor_name"] = v
	}
	if v := fields[dto.FieldTotalAmount]; inv.TotalAmount.IsZero() && v != "" {
		if amount, err := utils.ParseAmount(v); err == nil && !amount.IsNegative() {
			inv.TotalAmount = amount
			changed["total_amount"] = amount.String()
		} else {
			p.deps.Logger.Debug("ocr: amount not merged", zap.Int64("invoice_id", inv.ID), zap.String("value", v))
		}
	}
	if v := fields[dto.FieldDate]; inv.InvoiceDate == nil && v != "" {
		if d, err := utils.ParseInvoiceDate(v); err == nil {
			inv.InvoiceDate = &d
			changed["invoice_date"] = d.String()
		}
	}
	if v := fields[dto.FieldDueDate]; inv.DueDate == nil && v != "" {
		if d, err := utils.ParseInvoiceDate(v); err == nil {
			inv.DueDate = &d
			changed["due_date"] = d.String()
		}
	}
}

func mergePayment(inv *dto.Invoice, payment *epcqr.Payment, changed map[string]string) {
	if inv.VendorName == "" && payment.Beneficiary != "" {
		inv.VendorName = payment.Beneficiary
		changed["vendor_name"] = payment.Beneficiary
	}
	if inv.TotalAmount.IsZero() && payment.HasAmount {
		inv.TotalAmount = payment.Amount
		changed["total_amount"] = payment.Amount.String()
		if payment.Currency != "" {
			inv.Currency = payment.Currency
			changed["currency"] = payment.Currency
		}
	}
	if inv.PaymentReference == "" && payment.RemittanceInfo() != "" {
		inv.PaymentReference = payment.RemittanceInfo()
		changed["payment_reference"] = inv.PaymentReference
	}
	if inv.VendorIBAN == "" && payment.IBAN != "" {
		inv.VendorIBAN = payment.IBAN
		changed["vendor_iban"] = payment.IBAN
	}
}

func (p *InvoiceProcessor) applyScores(inv *dto.Invoice, anomaly dto.AnomalyResult, priority dto.PriorityResult) []dto.HistoryRecord {
	old := map[string]string{
		"ai_risk_score":     fmt.Sprint(inv.AIRiskScore),
		"ai_priority_score": fmt.Sprint(inv.AIPriorityScore),
		"priority":          string(inv.Priority),
	}
	inv.AIRiskScore = anomaly.RiskScore
	inv.AIPriorityScore = priority.PriorityScore
	inv.Priority = priority.PriorityLevel
	inv.AIProcessingStatus = dto.ProcessingCompleted
	return []dto.HistoryRecord{newHistory(inv.ID, dto.HistoryScored, dto.SystemActor, "Automated scoring", p.deps.Now(), old, map[string]string{
		"ai_risk_score":     fmt.Sprint(anomaly.RiskScore),
		"ai_priority_score": fmt.Sprint(priority.PriorityScore),
		"priority":          string(priority.PriorityLevel),
	})}
}

func buildRecommendations(anomaly dto.AnomalyResult, priority dto.PriorityResult, delay dto.DelayPrediction) []string {
	seen := map[string]bool{}
	out := []string{}
	add := func(items ...string) {
		for _, s := range items {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	if anomaly.RequiresReview {
		add("Review anomaly findings before approval")
	}
	add(priority.Recommendations...)
	add(delay.Recommendations...)
	return out
}

func buildNextActions(decision dto.RoutingDecision, ocrFailed bool) []string {
	actions := []string{}
	if ocrFailed {
		actions = append(actions, "Verify invoice fields manually")
	}
	switch {
	case decision.AutoApproved:
		actions = append(actions, "Schedule payment")
	case decision.AssignedTo != nil:
		actions = append(actions, "Await decision from the assigned approver")
	default:
		actions = append(actions, "Assign an approver manually")
	}
	return actions
}
