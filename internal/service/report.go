package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const dateLayout = "2006-01-02"

// resolveRange turns a report filter into a half-open [start, end) range in
// the report timezone. An explicit start/end pair takes priority over the
// named period. The end of an explicit range is the start of the day after
// EndDate, so a sale at 23:59:59.999 on the end date is included.
func (s *Service) resolveRange(filter domain.ReportFilter, now time.Time) (*time.Time, *time.Time, error) {
	startDate := strings.TrimSpace(filter.StartDate)
	endDate := strings.TrimSpace(filter.EndDate)

	if startDate != "" && endDate != "" {
		start, err := time.ParseInLocation(dateLayout, startDate, s.loc)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: start_date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		end, err := time.ParseInLocation(dateLayout, endDate, s.loc)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: end_date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		if end.Before(start) {
			return nil, nil, fmt.Errorf("%w: end_date must not be before start_date", store.ErrInvalidTransaction)
		}
		exclusiveEnd := end.AddDate(0, 0, 1)
		return &start, &exclusiveEnd, nil
	}

	switch strings.TrimSpace(filter.Period) {
	case domain.PeriodToday:
		// Day boundaries come from local calendar components, never from a
		// sliced UTC timestamp.
		local := now.In(s.loc)
		dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
		dayEnd := dayStart.AddDate(0, 0, 1)
		return &dayStart, &dayEnd, nil
	case domain.PeriodPastWeek:
		start := now.Add(-7 * 24 * time.Hour)
		return &start, nil, nil
	case domain.PeriodThisMonth:
		local := now.In(s.loc)
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
		return &start, nil, nil
	case domain.PeriodAllTime, "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidTransaction, filter.Period)
	}
}

func reportCacheKey(kind string, filter domain.ReportFilter) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", kind,
		strings.ToLower(strings.TrimSpace(filter.Search)),
		strings.TrimSpace(filter.CashierID),
		strings.TrimSpace(filter.StartDate),
		strings.TrimSpace(filter.EndDate),
		strings.TrimSpace(filter.Period))
}

func (s *Service) SalesReport(ctx context.Context, filter domain.ReportFilter) (domain.SalesReport, error) {
	key := reportCacheKey("sales-report", filter)
	var cached domain.SalesReport
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	views, stats, err := s.filteredSales(ctx, filter)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{Sales: views, Stats: stats}
	s.cacheSet(ctx, key, report)
	return report, nil
}

func (s *Service) SalesAnalytics(ctx context.Context, filter domain.ReportFilter) (domain.SalesAnalytics, error) {
	key := reportCacheKey("sales-analytics", filter)
	var cached domain.SalesAnalytics
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	views, stats, err := s.filteredSales(ctx, filter)
	if err != nil {
		return domain.SalesAnalytics{}, err
	}

	analytics := domain.SalesAnalytics{
		Stats:              stats,
		DailyRevenue:       s.dailyRevenue(views),
		TopItemsByQuantity: topItemsByQuantity(views, 10),
		TopItemsByRevenue:  topItemsByRevenue(views, 8),
		PaymentBreakdown:   paymentBreakdown(views),
		CashierBreakdown:   cashierBreakdown(views),
	}
	s.cacheSet(ctx, key, analytics)
	return analytics, nil
}

// filteredSales loads the ledger slice for the filter, resolves cashier
// labels and applies the free-text search. Deleted cashiers stay in the
// result set; the suffix on their label is display policy only.
func (s *Service) filteredSales(ctx context.Context, filter domain.ReportFilter) ([]domain.SaleView, domain.ReportStats, error) {
	start, end, err := s.resolveRange(filter, time.Now())
	if err != nil {
		return nil, domain.ReportStats{}, err
	}

	sales, err := s.repo.ListSales(ctx, store.SaleFilter{
		CashierID: strings.TrimSpace(filter.CashierID),
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, domain.ReportStats{}, err
	}

	labels, err := s.cashierLabels(ctx, sales)
	if err != nil {
		return nil, domain.ReportStats{}, err
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		label := labels[sale.CashierID]
		if search != "" && !matchesSearch(sale, label, search) {
			continue
		}
		views = append(views, domain.SaleView{Sale: sale, CashierLabel: label})
	}

	return views, computeStats(views), nil
}

func matchesSearch(sale domain.Sale, label string, search string) bool {
	return strings.Contains(strings.ToLower(label), search) ||
		strings.Contains(strings.ToLower(sale.CashierID), search) ||
		strings.Contains(strings.ToLower(sale.PaymentMethod), search)
}

// cashierLabels maps each cashier id to a display label: the live account
// email, the shadow email with a " [DELETED]" suffix, or "Unknown".
func (s *Service) cashierLabels(ctx context.Context, sales []domain.Sale) (map[string]string, error) {
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.CashierID)
	}
	unique := uniqueStrings(ids)

	users, err := s.repo.GetUsersByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	shadows, err := s.repo.GetDeletedUsersByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]string, len(unique))
	for _, id := range unique {
		switch {
		case users[id].ID != "":
			labels[id] = users[id].Email
		case shadows[id].ID != "":
			labels[id] = shadows[id].Email + " [DELETED]"
		default:
			labels[id] = "Unknown"
		}
	}
	return labels, nil
}

func computeStats(views []domain.SaleView) domain.ReportStats {
	stats := domain.ReportStats{
		TotalRevenue:       decimal.Zero,
		AverageTransaction: decimal.Zero,
	}
	for _, view := range views {
		stats.TotalRevenue = stats.TotalRevenue.Add(view.TotalAmount)
		switch view.PaymentMethod {
		case domain.PaymentCash:
			stats.CashCount++
		case domain.PaymentTransfer:
			stats.TransferCount++
		}
	}
	stats.TransactionCount = len(views)
	// An empty set averages to zero, not NaN.
	if stats.TransactionCount > 0 {
		stats.AverageTransaction = stats.TotalRevenue.
			Div(decimal.NewFromInt(int64(stats.TransactionCount))).
			Round(2)
	}
	return stats
}

func (s *Service) dailyRevenue(views []domain.SaleView) []domain.DailyRevenue {
	buckets := make(map[string]*domain.DailyRevenue)
	for _, view := range views {
		day := view.CreatedAt.In(s.loc).Format(dateLayout)
		bucket, ok := buckets[day]
		if !ok {
			bucket = &domain.DailyRevenue{Date: day, Revenue: decimal.Zero}
			buckets[day] = bucket
		}
		bucket.Revenue = bucket.Revenue.Add(view.TotalAmount)
		bucket.Transactions++
	}

	result := make([]domain.DailyRevenue, 0, len(buckets))
	for _, bucket := range buckets {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})
	return result
}

func topItemsByQuantity(views []domain.SaleView, limit int) []domain.ItemQuantityRank {
	totals := make(map[string]int)
	for _, view := range views {
		for _, line := range view.CartDetails {
			totals[line.Name] += line.Quantity
		}
	}

	ranks := make([]domain.ItemQuantityRank, 0, len(totals))
	for name, qty := range totals {
		ranks = append(ranks, domain.ItemQuantityRank{Name: name, Quantity: qty})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Quantity == ranks[j].Quantity {
			return ranks[i].Name < ranks[j].Name
		}
		return ranks[i].Quantity > ranks[j].Quantity
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

func topItemsByRevenue(views []domain.SaleView, limit int) []domain.ItemRevenueRank {
	totals := make(map[string]decimal.Decimal)
	for _, view := range views {
		for _, line := range view.CartDetails {
			lineRevenue := line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			totals[line.Name] = totals[line.Name].Add(lineRevenue)
		}
	}

	ranks := make([]domain.ItemRevenueRank, 0, len(totals))
	for name, revenue := range totals {
		ranks = append(ranks, domain.ItemRevenueRank{Name: name, Revenue: revenue})
	}
	sort.Slice(ranks, func(i, j int) bool {
		cmp := ranks[i].Revenue.Cmp(ranks[j].Revenue)
		if cmp == 0 {
			return ranks[i].Name < ranks[j].Name
		}
		return cmp > 0
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

func paymentBreakdown(views []domain.SaleView) []domain.PaymentSlice {
	byMethod := make(map[string]*domain.PaymentSlice)
	for _, view := range views {
		slice, ok := byMethod[view.PaymentMethod]
		if !ok {
			slice = &domain.PaymentSlice{Method: view.PaymentMethod, Revenue: decimal.Zero}
			byMethod[view.PaymentMethod] = slice
		}
		slice.Count++
		slice.Revenue = slice.Revenue.Add(view.TotalAmount)
	}

	result := make([]domain.PaymentSlice, 0, len(byMethod))
	for _, slice := range byMethod {
		result = append(result, *slice)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Method < result[j].Method
	})
	return result
}

func cashierBreakdown(views []domain.SaleView) []domain.CashierRevenue {
	byCashier := make(map[string]*domain.CashierRevenue)
	for _, view := range views {
		entry, ok := byCashier[view.CashierID]
		if !ok {
			entry = &domain.CashierRevenue{
				CashierID: view.CashierID,
				Label:     view.CashierLabel,
				Revenue:   decimal.Zero,
			}
			byCashier[view.CashierID] = entry
		}
		entry.Transactions++
		entry.Revenue = entry.Revenue.Add(view.TotalAmount)
	}

	result := make([]domain.CashierRevenue, 0, len(byCashier))
	for _, entry := range byCashier {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		cmp := result[i].Revenue.Cmp(result[j].Revenue)
		if cmp == 0 {
			return result[i].Label < result[j].Label
		}
		return cmp > 0
	})
	return result
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	payload, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("report cache payload corrupt")
		return false
	}
	return true
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
}
