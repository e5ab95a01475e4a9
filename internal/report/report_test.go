package report

import (
	"context"
	"testing"
	"time"

	"tillbook/backend/internal/cache"
	"tillbook/backend/internal/domain"
)

func TestSummarizeTotals(t *testing.T) {
	s := NewSummarizer(cache.NoopReportCache{}, 5*time.Second)

	entries := []domain.SaleEntry{
		{
			SoldQty:          2,
			PriceAtSaleCents: 500,
			AmountPaidCents:  1000,
			CreditCents:      0,
			Status:           domain.EntryStatusComplete,
			Payments:         map[string]int64{domain.TenderCash: 1000},
		},
		{
			SoldQty:          1,
			PriceAtSaleCents: 800,
			AmountPaidCents:  300,
			CreditCents:      500,
			Status:           domain.EntryStatusComplete,
			Payments:         map[string]int64{domain.TenderMomo: 300, domain.TenderCredit: 500},
		},
		{
			SoldQty:          4,
			PriceAtSaleCents: 250,
			AmountPaidCents:  1000,
			Status:           domain.EntryStatusCancelled,
			Payments:         map[string]int64{domain.TenderCash: 1000},
		},
	}

	summary := s.Summarize(context.Background(), "2025-03-01", entries)

	if summary.Entries != 2 {
		t.Fatalf("expected 2 counted entries, got %d", summary.Entries)
	}
	if summary.CancelledEntries != 1 {
		t.Fatalf("expected 1 cancelled entry, got %d", summary.CancelledEntries)
	}
	if summary.GrossCents != 1800 {
		t.Fatalf("expected gross 1800, got %d", summary.GrossCents)
	}
	if summary.PaidCents != 1300 {
		t.Fatalf("expected paid 1300, got %d", summary.PaidCents)
	}
	if summary.CreditCents != 500 {
		t.Fatalf("expected credit 500, got %d", summary.CreditCents)
	}
}

func TestSummarizeByTenderIsSorted(t *testing.T) {
	s := NewSummarizer(nil, 0)

	entries := []domain.SaleEntry{
		{Status: domain.EntryStatusComplete, Payments: map[string]int64{domain.TenderMomo: 200}},
		{Status: domain.EntryStatusComplete, Payments: map[string]int64{domain.TenderCash: 100, domain.TenderCredit: 50}},
	}

	summary := s.Summarize(context.Background(), "2025-03-01", entries)

	if len(summary.ByTender) != 3 {
		t.Fatalf("expected 3 tender totals, got %d", len(summary.ByTender))
	}
	for i := 1; i < len(summary.ByTender); i++ {
		if summary.ByTender[i-1].Tender > summary.ByTender[i].Tender {
			t.Fatalf("expected tender totals sorted, got %v", summary.ByTender)
		}
	}
}
