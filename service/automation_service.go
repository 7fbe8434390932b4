package service

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aashish23092/invoice-flow/dto"
)

// AutomationStatuses are the invoice states the rule engine considers.
var AutomationStatuses = []dto.InvoiceStatus{dto.StatusDraft, dto.StatusPendingApproval}

// AutomationService runs the rule engine over many invoices in parallel.
// Invoices are independent; each one is serialized by the store.
type AutomationService struct {
	store       InvoiceStore
	rules       RuleSource
	engine      *RuleEngine
	concurrency int
	logger      *zap.Logger
}

func NewAutomationService(store InvoiceStore, rules RuleSource, engine *RuleEngine, concurrency int, logger *zap.Logger) *AutomationService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutomationService{store: store, rules: rules, engine: engine, concurrency: concurrency, logger: logger}
}

// RunPass evaluates the active rules against every open invoice. A failure on
// one invoice is counted and logged without stopping the others.
func (s *AutomationService) RunPass(ctx context.Context) (dto.AutomationSummary, error) {
	rules, err := s.rules.ActiveRules(ctx)
	if err != nil {
		return dto.AutomationSummary{}, eris.Wrap(err, "automation: load rules")
	}
	rules = SortRules(rules)

	invoices, err := s.store.ListInvoices(ctx, dto.InvoiceFilter{Statuses: AutomationStatuses})
	if err != nil {
		return dto.AutomationSummary{}, eris.Wrap(err, "automation: list invoices")
	}

	var (
		mu      sync.Mutex
		summary dto.AutomationSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, inv := range invoices {
		id := inv.ID
		g.Go(func() error {
			app, err := s.engine.EvaluateAndApply(gctx, id, rules)

			mu.Lock()
			defer mu.Unlock()
			summary.Evaluated++
			if err != nil {
				summary.Failed++
				s.logger.Error("automation: invoice failed", zap.Int64("invoice_id", id), zap.Error(err))
				return nil
			}
			if app.RuleID != nil {
				summary.Matched++
			}
			if app.Applied {
				summary.Applied++
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return summary, eris.Wrap(err, "automation: pass interrupted")
	}
	s.logger.Info("automation pass finished",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("matched", summary.Matched),
		zap.Int("applied", summary.Applied),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
