package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

const (
	defaultDaysUntilDue  = 30
	unknownReliability   = 0.5
	predictionConfidence = 0.85
)

// DelayFeatures is the classifier input:
// normalized amount, days until due, vendor reliability, service weight.
type DelayFeatures struct {
	AmountRatio   float64
	DaysUntilDue  float64
	Reliability   float64
	ServiceWeight float64
}

// Classifier turns features into a delay probability in [0,1].
type Classifier interface {
	Predict(f DelayFeatures) (float64, error)
}

// LogisticClassifier is a fixed-weight logistic model. The default weights
// are a stand-in until enough payment history exists to fit them.
type LogisticClassifier struct {
	Bias    float64
	Weights DelayFeatures
}

func DefaultDelayClassifier() LogisticClassifier {
	return LogisticClassifier{
		Bias: 1.0,
		Weights: DelayFeatures{
			AmountRatio:   0.25,
			DaysUntilDue:  -0.05,
			Reliability:   -2.0,
			ServiceWeight: -0.5,
		},
	}
}

func (c LogisticClassifier) Predict(f DelayFeatures) (float64, error) {
	z := c.Bias +
		c.Weights.AmountRatio*f.AmountRatio +
		c.Weights.DaysUntilDue*f.DaysUntilDue +
		c.Weights.Reliability*f.Reliability +
		c.Weights.ServiceWeight*f.ServiceWeight
	return 1 / (1 + math.Exp(-z)), nil
}

// DelayPredictor estimates the probability that an invoice is paid late.
// It is advisory: any failure yields dto.NeutralDelayPrediction.
type DelayPredictor struct {
	classifier Classifier
	history    HistoryReader
	now        func() time.Time
	logger     *zap.Logger
}

func NewDelayPredictor(classifier Classifier, history HistoryReader, now func() time.Time, logger *zap.Logger) *DelayPredictor {
	if classifier == nil {
		classifier = DefaultDelayClassifier()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DelayPredictor{classifier: classifier, history: history, now: now, logger: logger}
}

func (p *DelayPredictor) Predict(ctx context.Context, inv dto.InvoiceData) dto.DelayPrediction {
	features, knownVendor, err := p.Features(ctx, inv)
	if err != nil {
		p.logger.Warn("delay prediction unavailable", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return dto.NeutralDelayPrediction()
	}

	prob, err := p.classifier.Predict(features)
	if err == nil && (math.IsNaN(prob) || prob < 0 || prob > 1) {
		err = eris.Errorf("service: classifier returned %v", prob)
	}
	if err != nil {
		p.logger.Warn("delay classifier failed", zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return dto.NeutralDelayPrediction()
	}

	highAmount := inv.TotalAmount.GreaterThan(highAmountTier)
	riskFactors := []string{}
	if highAmount {
		riskFactors = append(riskFactors, "High invoice amount")
	}
	if !knownVendor {
		riskFactors = append(riskFactors, "New vendor without payment history")
	} else if features.Reliability < 0.5 {
		riskFactors = append(riskFactors, "Vendor is often paid late")
	}
	if features.DaysUntilDue <= 3 {
		riskFactors = append(riskFactors, "Due date is imminent")
	}

	recommendations := []string{}
	switch {
	case prob > 0.7:
		recommendations = append(recommendations, "Expedite approval", "Contact the vendor about payment timing")
	case prob > 0.5:
		recommendations = append(recommendations, "Monitor payment progress")
	}
	if highAmount {
		recommendations = append(recommendations, "Require additional approval for high amount")
	}

	level := dto.RiskLow
	switch {
	case prob > 0.7:
		level = dto.RiskHigh
	case prob > 0.4:
		level = dto.RiskMedium
	}

	return dto.DelayPrediction{
		DelayProbability: prob,
		RiskLevel:        level,
		RiskFactors:      riskFactors,
		Recommendations:  recommendations,
		Confidence:       predictionConfidence,
	}
}

// Features derives the classifier input. The bool reports whether the vendor has payment history.
func (p *DelayPredictor) Features(ctx context.Context, inv dto.InvoiceData) (DelayFeatures, bool, error) {
	amountRatio, _ := inv.TotalAmount.Div(highAmountTier).Float64()
	f := DelayFeatures{
		AmountRatio:   math.Min(amountRatio, 10),
		DaysUntilDue:  defaultDaysUntilDue,
		Reliability:   unknownReliability,
		ServiceWeight: 0.5,
	}

	if strings.TrimSpace(inv.DueDate) != "" {
		due, err := dto.ParseDate(inv.DueDate)
		if err != nil {
			return DelayFeatures{}, false, err
		}
		f.DaysUntilDue = math.Max(float64(dto.DateOf(p.now()).DaysUntil(due)), 0)
	}

	known := false
	if vendor := strings.TrimSpace(inv.VendorName); vendor != "" && p.history != nil {
		reliability, ok, err := p.history.VendorReliability(ctx, vendor)
		if err != nil {
			return DelayFeatures{}, false, err
		}
		if ok {
			f.Reliability, known = reliability, true
		}
	}

	switch strings.ToLower(strings.TrimSpace(inv.CurrentService)) {
	case "finance", "accounting":
		f.ServiceWeight = 1.0
	}
	return f, known, nil
}

var _ Classifier = LogisticClassifier{}
