package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aashish23092/invoice-flow/dto"
)

// Anomaly penalties and thresholds.
const (
	SpikeMultiplier     = 3
	SpikePenalty        = 30
	NewVendorPenalty    = 25
	TimingPenalty       = 20
	DuplicatePenalty    = 40
	OldInvoiceDays      = 90
	DuplicateWindowDays = 30
	MaxRiskScore        = 100
	// ReviewScore is compared with ">"; it is independent from the risk level cut-offs.
	ReviewScore = 50
)

var duplicateTolerance = decimal.NewFromFloat(0.05)

// AnomalyDetector scores an invoice against heuristics built on invoice history.
type AnomalyDetector struct {
	history HistoryReader
	now     func() time.Time
	logger  *zap.Logger
}

func NewAnomalyDetector(history HistoryReader, now func() time.Time, logger *zap.Logger) *AnomalyDetector {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnomalyDetector{history: history, now: now, logger: logger}
}

type anomalyCheck struct {
	name string
	run  func(ctx context.Context, inv dto.InvoiceData) (*dto.AnomalyFinding, error)
}

// Detect runs every check. A check that errors is logged and contributes nothing.
func (d *AnomalyDetector) Detect(ctx context.Context, inv dto.InvoiceData) dto.AnomalyResult {
	checks := []anomalyCheck{
		{name: "amount_spike", run: d.checkAmountSpike},
		{name: "new_vendor", run: d.checkNewVendor},
		{name: "timing", run: d.checkTiming},
		{name: "duplicate", run: d.checkDuplicate},
	}

	result := dto.AnomalyResult{Anomalies: []dto.AnomalyFinding{}}
	for _, c := range checks {
		finding, err := c.run(ctx, inv)
		if err != nil {
			d.logger.Warn("anomaly check skipped",
				zap.String("check", c.name),
				zap.Int64("invoice_id", inv.ID),
				zap.Error(err),
			)
			continue
		}
		if finding != nil {
			result.Anomalies = append(result.Anomalies, *finding)
			result.RiskScore += finding.Penalty
		}
	}

	if result.RiskScore > MaxRiskScore {
		result.RiskScore = MaxRiskScore
	}
	result.RiskLevel = RiskLevelFor(float64(result.RiskScore) / 100)
	result.RequiresReview = result.RiskScore > ReviewScore
	return result
}

// RiskLevelFor maps a probability to a risk level: >=0.8 high, >=0.6 medium.
func RiskLevelFor(p float64) dto.RiskLevel {
	switch {
	case p >= 0.8:
		return dto.RiskHigh
	case p >= 0.6:
		return dto.RiskMedium
	default:
		return dto.RiskLow
	}
}

func (d *AnomalyDetector) checkAmountSpike(ctx context.Context, inv dto.InvoiceData) (*dto.AnomalyFinding, error) {
	vendor := strings.TrimSpace(inv.VendorName)
	if vendor == "" {
		return nil, nil
	}
	avg, ok, err := d.history.VendorAverage(ctx, vendor, inv.ID)
	if err != nil || !ok || !avg.IsPositive() {
		return nil, err
	}
	if !inv.TotalAmount.GreaterThan(avg.Mul(decimal.NewFromInt(SpikeMultiplier))) {
		return nil, nil
	}
	current := inv.TotalAmount
	return &dto.AnomalyFinding{
		Type:          dto.AnomalyAmountSpike,
		Description:   fmt.Sprintf("Amount %s is more than %dx the vendor average of %s", current.StringFixed(2), SpikeMultiplier, avg.StringFixed(2)),
		Severity:      dto.SeverityHigh,
		Penalty:       SpikePenalty,
		CurrentAmount: &current,
		AverageAmount: &avg,
	}, nil
}

func (d *AnomalyDetector) checkNewVendor(ctx context.Context, inv dto.InvoiceData) (*dto.AnomalyFinding, error) {
	vendor := strings.TrimSpace(inv.VendorName)
	if vendor == "" {
		return nil, nil
	}
	exists, err := d.history.VendorExists(ctx, vendor, inv.ID)
	if err != nil || exists {
		return nil, err
	}
	return &dto.AnomalyFinding{
		Type:        dto.AnomalyNewVendor,
		Description: fmt.Sprintf("First invoice from vendor %q", vendor),
		Severity:    dto.SeverityMedium,
		Penalty:     NewVendorPenalty,
		Vendor:      vendor,
	}, nil
}

// checkTiming reports at most one of future_date and old_invoice.
func (d *AnomalyDetector) checkTiming(_ context.Context, inv dto.InvoiceData) (*dto.AnomalyFinding, error) {
	if strings.TrimSpace(inv.InvoiceDate) == "" {
		return nil, nil
	}
	issued, err := dto.ParseDate(inv.InvoiceDate)
	if err != nil {
		return nil, err
	}
	today := dto.DateOf(d.now())

	if issued.After(today) {
		return &dto.AnomalyFinding{
			Type:        dto.AnomalyFutureDate,
			Description: fmt.Sprintf("Invoice date %s is in the future", issued),
			Severity:    dto.SeverityHigh,
			Penalty:     TimingPenalty,
			InvoiceDate: issued.String(),
		}, nil
	}
	if age := issued.DaysUntil(today); age > OldInvoiceDays {
		return &dto.AnomalyFinding{
			Type:        dto.AnomalyOldInvoice,
			Description: fmt.Sprintf("Invoice is %d days old", age),
			Severity:    dto.SeverityMedium,
			Penalty:     TimingPenalty,
			InvoiceDate: issued.String(),
			DaysOld:     age,
		}, nil
	}
	return nil, nil
}

func (d *AnomalyDetector) checkDuplicate(ctx context.Context, inv dto.InvoiceData) (*dto.AnomalyFinding, error) {
	vendor := strings.TrimSpace(inv.VendorName)
	if vendor == "" {
		return nil, nil
	}
	delta := inv.TotalAmount.Mul(duplicateTolerance)
	count, err := d.history.CountSimilar(ctx, dto.SimilarInvoiceQuery{
		Vendor:    vendor,
		MinAmount: inv.TotalAmount.Sub(delta),
		MaxAmount: inv.TotalAmount.Add(delta),
		Since:     dto.DateOf(d.now()).AddDays(-DuplicateWindowDays),
		ExcludeID: inv.ID,
	})
	if err != nil || count == 0 {
		return nil, err
	}
	return &dto.AnomalyFinding{
		Type:         dto.AnomalyPotentialDuplicate,
		Description:  fmt.Sprintf("%d similar invoice(s) from this vendor in the last %d days", count, DuplicateWindowDays),
		Severity:     dto.SeverityHigh,
		Penalty:      DuplicatePenalty,
		Vendor:       vendor,
		SimilarCount: count,
	}, nil
}
