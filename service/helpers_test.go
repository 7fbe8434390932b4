package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aashish23092/invoice-flow/dto"
	"github.com/Aashish23092/invoice-flow/store"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func day(offset int) *dto.Date {
	return dto.DatePtr(dto.DateOf(testNow).AddDays(offset))
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestStore() *store.MemoryStore {
	return store.NewMemoryStore(testClock)
}

// captureDispatcher records every notification it is handed.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []dto.Notification
	err  error
}

func (c *captureDispatcher) Dispatch(_ context.Context, n dto.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *captureDispatcher) byType(t dto.NotificationType) []dto.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []dto.Notification
	for _, n := range c.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

var errHistoryDown = errors.New("history unavailable")

// brokenHistory fails every query.
type brokenHistory struct{}

func (brokenHistory) VendorAverage(context.Context, string, int64) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, errHistoryDown
}

func (brokenHistory) VendorExists(context.Context, string, int64) (bool, error) {
	return false, errHistoryDown
}

func (brokenHistory) CountSimilar(context.Context, dto.SimilarInvoiceQuery) (int, error) {
	return 0, errHistoryDown
}

func (brokenHistory) VendorReliability(context.Context, string) (float64, bool, error) {
	return 0, false, errHistoryDown
}
