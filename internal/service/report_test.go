package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/store/memory"
)

func insertSale(t *testing.T, repo *memory.Store, id string, cashierID string, at time.Time, method string, lines ...domain.CartItem) {
	t.Helper()
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	_, _, err := repo.CreateSale(context.Background(), domain.Sale{
		ID:            id,
		CashierID:     cashierID,
		CreatedAt:     at,
		TotalAmount:   total,
		PaymentMethod: method,
		CartDetails:   lines,
	})
	if err != nil {
		t.Fatalf("insertSale %s: %v", id, err)
	}
}

func line(name string, price string, qty int) domain.CartItem {
	return domain.CartItem{ID: "item-" + name, Name: name, Price: decimal.RequireFromString(price), Quantity: qty}
}

func TestSalesReportEmptySetAveragesToZero(t *testing.T) {
	svc, _ := newTestService(t)

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if report.Stats.TransactionCount != 0 {
		t.Fatalf("expected no transactions, got %d", report.Stats.TransactionCount)
	}
	if !report.Stats.AverageTransaction.IsZero() || !report.Stats.TotalRevenue.IsZero() {
		t.Fatalf("empty set must average to zero, got %+v", report.Stats)
	}
}

func TestSalesReportStats(t *testing.T) {
	svc, repo := newTestService(t)

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-1", "c-1", base, domain.PaymentCash, line("Americano", "2.50", 2))
	insertSale(t, repo, "sale-2", "c-1", base.Add(time.Hour), domain.PaymentTransfer, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-3", "c-2", base.Add(2*time.Hour), domain.PaymentCash, line("Americano", "2.50", 1))

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	stats := report.Stats
	if stats.TransactionCount != 3 || stats.CashCount != 2 || stats.TransferCount != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if !stats.TotalRevenue.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("expected revenue 9.00, got %s", stats.TotalRevenue)
	}
	if !stats.AverageTransaction.Equal(decimal.RequireFromString("3.00")) {
		t.Fatalf("expected average 3.00, got %s", stats.AverageTransaction)
	}
	if report.Sales[0].ID != "sale-3" {
		t.Fatalf("sales must be newest first, got %s", report.Sales[0].ID)
	}
}

func TestSalesReportDayBoundary(t *testing.T) {
	svc, repo := newTestService(t)

	// One millisecond before midnight on the end date must land inside the
	// half-open range.
	lastMoment := time.Date(2026, 3, 10, 23, 59, 59, 999_000_000, time.UTC)
	nextDay := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-edge", "c-1", lastMoment, domain.PaymentCash, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-next", "c-1", nextDay, domain.PaymentCash, line("Soda", "1.50", 1))

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{
		StartDate: "2026-03-10", EndDate: "2026-03-10",
	})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report.Sales) != 1 || report.Sales[0].ID != "sale-edge" {
		t.Fatalf("expected only the end-of-day sale, got %+v", report.Sales)
	}
}

func TestSalesReportPeriodToday(t *testing.T) {
	svc, repo := newTestService(t)

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-late", "c-1", dayStart.Add(24*time.Hour-time.Millisecond), domain.PaymentCash, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-yesterday", "c-1", dayStart.Add(-time.Hour), domain.PaymentCash, line("Soda", "1.50", 1))

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{Period: domain.PeriodToday})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report.Sales) != 1 || report.Sales[0].ID != "sale-late" {
		t.Fatalf("expected only today's sale, got %+v", report.Sales)
	}
}

func TestSalesReportExplicitRangeBeatsPeriod(t *testing.T) {
	svc, repo := newTestService(t)

	insertSale(t, repo, "sale-old", "c-1", time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), domain.PaymentCash, line("Soda", "1.50", 1))

	// The period alone would exclude the sale; the explicit range wins.
	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{
		StartDate: "2026-01-01", EndDate: "2026-01-31", Period: domain.PeriodToday,
	})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report.Sales) != 1 {
		t.Fatalf("explicit range must take priority over period, got %+v", report.Sales)
	}
}

func TestSalesReportRangeValidation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []domain.ReportFilter{
		{StartDate: "03/10/2026", EndDate: "2026-03-11"},
		{StartDate: "2026-03-10", EndDate: "not-a-date"},
		{StartDate: "2026-03-11", EndDate: "2026-03-10"},
		{Period: "lastQuarter"},
	}
	for _, filter := range cases {
		if _, err := svc.SalesReport(adminCtx(), filter); !errors.Is(err, store.ErrInvalidTransaction) {
			t.Fatalf("filter %+v: expected invalid transaction, got %v", filter, err)
		}
	}
}

func TestSalesReportCashierLabels(t *testing.T) {
	svc, repo := newTestService(t)

	live, err := svc.CreateAccount(adminCtx(), domain.AccountCreateRequest{Email: "live@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	gone, err := svc.CreateAccount(adminCtx(), domain.AccountCreateRequest{Email: "gone@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-1", live.ID, base, domain.PaymentCash, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-2", gone.ID, base.Add(time.Minute), domain.PaymentCash, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-3", "never-existed", base.Add(2*time.Minute), domain.PaymentCash, line("Soda", "1.50", 1))

	if _, err := svc.DeleteAccount(adminCtx(), domain.AccountDeleteRequest{Email: gone.Email}); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	labels := map[string]string{}
	for _, view := range report.Sales {
		labels[view.CashierID] = view.CashierLabel
	}
	if labels[live.ID] != "live@pos.local" {
		t.Fatalf("live label wrong: %q", labels[live.ID])
	}
	if labels[gone.ID] != "gone@pos.local [DELETED]" {
		t.Fatalf("deleted label wrong: %q", labels[gone.ID])
	}
	if labels["never-existed"] != "Unknown" {
		t.Fatalf("unknown label wrong: %q", labels["never-existed"])
	}
}

func TestSalesReportSearch(t *testing.T) {
	svc, repo := newTestService(t)

	live, err := svc.CreateAccount(adminCtx(), domain.AccountCreateRequest{Email: "jo@pos.local", Password: "secret1"})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-1", live.ID, base, domain.PaymentCash, line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-2", "other", base.Add(time.Minute), domain.PaymentTransfer, line("Soda", "1.50", 1))

	report, err := svc.SalesReport(adminCtx(), domain.ReportFilter{Search: "JO@pos"})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report.Sales) != 1 || report.Sales[0].ID != "sale-1" {
		t.Fatalf("search by email failed, got %+v", report.Sales)
	}

	report, err = svc.SalesReport(adminCtx(), domain.ReportFilter{Search: "transfer"})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if len(report.Sales) != 1 || report.Sales[0].ID != "sale-2" {
		t.Fatalf("search by payment method failed, got %+v", report.Sales)
	}
	if report.Stats.TransactionCount != 1 {
		t.Fatalf("stats must reflect the searched subset, got %+v", report.Stats)
	}
}

func TestSalesAnalytics(t *testing.T) {
	svc, repo := newTestService(t)

	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	insertSale(t, repo, "sale-1", "c-1", day1, domain.PaymentCash,
		line("Americano", "2.50", 3), line("Soda", "1.50", 1))
	insertSale(t, repo, "sale-2", "c-1", day1.Add(time.Hour), domain.PaymentTransfer,
		line("Soda", "1.50", 4))
	insertSale(t, repo, "sale-3", "c-2", day2, domain.PaymentCash,
		line("Americano", "2.50", 1))

	analytics, err := svc.SalesAnalytics(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesAnalytics: %v", err)
	}

	if len(analytics.DailyRevenue) != 2 {
		t.Fatalf("expected 2 daily buckets, got %+v", analytics.DailyRevenue)
	}
	if analytics.DailyRevenue[0].Date != "2026-03-10" || analytics.DailyRevenue[0].Transactions != 2 {
		t.Fatalf("unexpected first bucket %+v", analytics.DailyRevenue[0])
	}
	if !analytics.DailyRevenue[0].Revenue.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("expected day1 revenue 15.00, got %s", analytics.DailyRevenue[0].Revenue)
	}

	if analytics.TopItemsByQuantity[0].Name != "Soda" || analytics.TopItemsByQuantity[0].Quantity != 5 {
		t.Fatalf("unexpected top item by quantity %+v", analytics.TopItemsByQuantity)
	}
	if analytics.TopItemsByRevenue[0].Name != "Americano" ||
		!analytics.TopItemsByRevenue[0].Revenue.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("unexpected top item by revenue %+v", analytics.TopItemsByRevenue)
	}

	if len(analytics.PaymentBreakdown) != 2 {
		t.Fatalf("expected 2 payment slices, got %+v", analytics.PaymentBreakdown)
	}
	for _, slice := range analytics.PaymentBreakdown {
		if slice.Method == domain.PaymentCash && slice.Count != 2 {
			t.Fatalf("unexpected cash slice %+v", slice)
		}
	}

	if len(analytics.CashierBreakdown) != 2 || analytics.CashierBreakdown[0].CashierID != "c-1" {
		t.Fatalf("cashier breakdown must be revenue-ordered, got %+v", analytics.CashierBreakdown)
	}
}

type countingCache struct {
	store map[string][]byte
	gets  int
	sets  int
}

func (c *countingCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.gets++
	payload, ok := c.store[key]
	return payload, ok, nil
}

func (c *countingCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.sets++
	c.store[key] = payload
	return nil
}

func (c *countingCache) Invalidate(_ context.Context) error {
	c.store = map[string][]byte{}
	return nil
}

func TestSalesReportUsesCache(t *testing.T) {
	repo := memory.New()
	reportCache := &countingCache{store: map[string][]byte{}}
	svc := New(repo, reportCache, nil, time.UTC, time.Minute)

	insertSale(t, repo, "sale-1", "c-1", time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), domain.PaymentCash, line("Soda", "1.50", 1))

	first, err := svc.SalesReport(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	second, err := svc.SalesReport(adminCtx(), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("SalesReport: %v", err)
	}
	if reportCache.sets != 1 || reportCache.gets != 2 {
		t.Fatalf("expected one miss then one hit, gets=%d sets=%d", reportCache.gets, reportCache.sets)
	}
	if first.Stats.TransactionCount != second.Stats.TransactionCount {
		t.Fatalf("cached report diverged")
	}
}
