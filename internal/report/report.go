// Package report aggregates the day-bucketed sales ledger into summaries
// served to the dashboard. Summaries may be served slightly stale from the
// cache; reads never block writers.
package report

import (
	"context"
	"sort"
	"time"

	"tillbook/backend/internal/cache"
	"tillbook/backend/internal/domain"
)

type Summarizer struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewSummarizer(cacheStore cache.ReportCache, cacheTTL time.Duration) *Summarizer {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Summarizer{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Summarize totals the given day's entries. Cancelled entries are excluded
// from the money totals but counted separately so the dashboard can show
// reversal volume.
func (s *Summarizer) Summarize(ctx context.Context, date string, entries []domain.SaleEntry) domain.DailySummary {
	cacheKey := "tillbook:report:" + date
	if cached, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	summary := domain.DailySummary{Date: date}
	byTender := make(map[string]int64)

	for _, entry := range entries {
		if entry.Status == domain.EntryStatusCancelled {
			summary.CancelledEntries++
			continue
		}
		summary.Entries++
		summary.GrossCents += int64(entry.SoldQty) * entry.PriceAtSaleCents
		summary.PaidCents += entry.AmountPaidCents
		summary.CreditCents += entry.CreditCents
		for tender, amount := range entry.Payments {
			byTender[tender] += amount
		}
	}

	summary.ByTender = make([]domain.TenderTotal, 0, len(byTender))
	for tender, amount := range byTender {
		summary.ByTender = append(summary.ByTender, domain.TenderTotal{Tender: tender, AmountCents: amount})
	}
	sort.Slice(summary.ByTender, func(i, j int) bool {
		return summary.ByTender[i].Tender < summary.ByTender[j].Tender
	})

	_ = s.cache.Set(ctx, cacheKey, &summary, s.cacheTTL)
	return summary
}
