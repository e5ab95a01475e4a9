package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/report"
	"tillbook/backend/internal/store"
	"tillbook/backend/internal/store/memory"
)

const testDate = "2025-03-01"

func newTestService() *Service {
	repo := memory.NewSeeded()
	return New(repo, report.NewSummarizer(nil, 0))
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "seller", Role: "seller"})
}

func mustCreateClient(t *testing.T, svc *Service) domain.Client {
	t.Helper()
	client, err := svc.CreateClient(sellerCtx(), domain.ClientCreateRequest{
		Name:      "Ama Serwaa",
		Telephone: "0244000001",
	})
	if err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	return client
}

func productQty(t *testing.T, svc *Service, id string) int {
	t.Helper()
	product, err := svc.repo.GetProductByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s failed: %v", id, err)
	}
	return product.Quantity
}

func TestRecordSaleFullPayment(t *testing.T) {
	svc := newTestService()

	// Seeded soft drink: 500 cents, 240 in stock.
	entry, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       2,
		Payments:  map[string]int64{domain.TenderCash: 1000},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	if entry.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected PAID, got %s", entry.PaymentStatus)
	}
	if entry.AmountPaidCents != 1000 || entry.CreditCents != 0 {
		t.Fatalf("unexpected allocation: paid=%d credit=%d", entry.AmountPaidCents, entry.CreditCents)
	}
	if entry.InitialQty != 240 || entry.RemainingQty != 238 {
		t.Fatalf("unexpected stock snapshot: initial=%d remaining=%d", entry.InitialQty, entry.RemainingQty)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != 238 {
		t.Fatalf("expected stock 238 after sale, got %d", got)
	}
}

func TestRecordSalePartialPaymentOpensCredit(t *testing.T) {
	svc := newTestService()
	client := mustCreateClient(t, svc)

	// Sugar 1kg: 1550 cents. Pay 1000 of 3100 for two units.
	entry, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-sugar-1kg",
		Date:      testDate,
		Qty:       2,
		ClientID:  client.ID,
		Payments:  map[string]int64{domain.TenderCash: 600, domain.TenderMomo: 400},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	if entry.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("expected PARTIALLY_PAID, got %s", entry.PaymentStatus)
	}
	if entry.AmountPaidCents+entry.CreditCents != int64(entry.SoldQty)*entry.PriceAtSaleCents {
		t.Fatalf("allocation identity broken: paid=%d credit=%d", entry.AmountPaidCents, entry.CreditCents)
	}

	credits, err := svc.ListClientCredits(sellerCtx(), client.ID)
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected 1 credit obligation, got %d", len(credits))
	}
	if credits[0].RemainingCents != 2100 {
		t.Fatalf("expected remaining 2100, got %d", credits[0].RemainingCents)
	}
	if credits[0].Status != domain.CreditStatusLoaned {
		t.Fatalf("expected LOANED status, got %s", credits[0].Status)
	}
}

func TestRecordSaleCreditRequiresClient(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-sugar-1kg",
		Date:      testDate,
		Qty:       1,
		Payments:  map[string]int64{domain.TenderCash: 500},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for anonymous credit sale, got %v", err)
	}
}

func TestRecordSaleOverpaymentRejected(t *testing.T) {
	svc := newTestService()

	before := productQty(t, svc, "prod-soft-drink")
	_, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       1,
		Payments:  map[string]int64{domain.TenderCash: 600},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for overpayment, got %v", err)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != before {
		t.Fatalf("stock changed on rejected sale: %d -> %d", before, got)
	}
}

func TestRecordSaleInsufficientStock(t *testing.T) {
	svc := newTestService()

	before := productQty(t, svc, "prod-bread-loaf")
	_, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-bread-loaf",
		Date:      testDate,
		Qty:       before + 1,
		Payments:  map[string]int64{domain.TenderCash: int64(before+1) * 1200},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if got := productQty(t, svc, "prod-bread-loaf"); got != before {
		t.Fatalf("stock changed on failed sale: %d -> %d", before, got)
	}
}

func TestRecordSaleRejectsBadDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      "01-03-2025",
		Qty:       1,
		Payments:  map[string]int64{domain.TenderCash: 500},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}

func TestCancellationRejectRestoresStock(t *testing.T) {
	svc := newTestService()

	entry, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       3,
		Payments:  map[string]int64{domain.TenderCash: 1500},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	afterSale := productQty(t, svc, "prod-soft-drink")

	_, err = svc.RequestCancellation(sellerCtx(), domain.CancellationRequest{
		ProductID: entry.ProductID,
		Date:      testDate,
		EntryID:   entry.ID,
	})
	if err != nil {
		t.Fatalf("request cancellation failed: %v", err)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != afterSale {
		t.Fatalf("stock changed on cancellation request: %d -> %d", afterSale, got)
	}

	resolved, err := svc.ResolveApproval(adminCtx(), domain.ApprovalRequest{
		ProductID: entry.ProductID,
		EntryID:   entry.ID,
		Action:    domain.ApprovalActionReject,
	})
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if resolved.Status != domain.EntryStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", resolved.Status)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != afterSale+3 {
		t.Fatalf("expected stock restored to %d, got %d", afterSale+3, got)
	}

	// A second reject must fail and must not restock again.
	_, err = svc.ResolveApproval(adminCtx(), domain.ApprovalRequest{
		ProductID: entry.ProductID,
		EntryID:   entry.ID,
		Action:    domain.ApprovalActionReject,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on double reject, got %v", err)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != afterSale+3 {
		t.Fatalf("double reject changed stock: got %d", got)
	}
}

func TestCancellationApproveKeepsSale(t *testing.T) {
	svc := newTestService()

	entry, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       1,
		Payments:  map[string]int64{domain.TenderCash: 500},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	afterSale := productQty(t, svc, "prod-soft-drink")

	if _, err := svc.RequestCancellation(sellerCtx(), domain.CancellationRequest{
		ProductID: entry.ProductID,
		Date:      testDate,
		EntryID:   entry.ID,
	}); err != nil {
		t.Fatalf("request cancellation failed: %v", err)
	}

	resolved, err := svc.ResolveApproval(adminCtx(), domain.ApprovalRequest{
		ProductID: entry.ProductID,
		EntryID:   entry.ID,
		Action:    domain.ApprovalActionApprove,
	})
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if resolved.Status != domain.EntryStatusComplete {
		t.Fatalf("expected complete status after approve, got %s", resolved.Status)
	}
	if got := productQty(t, svc, "prod-soft-drink"); got != afterSale {
		t.Fatalf("approve changed stock: %d -> %d", afterSale, got)
	}
}

func TestRequestCancellationRequiresCompleteEntry(t *testing.T) {
	svc := newTestService()

	entry, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       1,
		Payments:  map[string]int64{domain.TenderCash: 500},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	req := domain.CancellationRequest{ProductID: entry.ProductID, Date: testDate, EntryID: entry.ID}
	if _, err := svc.RequestCancellation(sellerCtx(), req); err != nil {
		t.Fatalf("first cancellation request failed: %v", err)
	}
	if _, err := svc.RequestCancellation(sellerCtx(), req); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected invalid state on repeated request, got %v", err)
	}
}

func TestResolveApprovalUnknownEntry(t *testing.T) {
	svc := newTestService()

	_, err := svc.ResolveApproval(adminCtx(), domain.ApprovalRequest{
		ProductID: "prod-soft-drink",
		EntryID:   "sale-missing",
		Action:    domain.ApprovalActionReject,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResolveApprovalRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.ResolveApproval(sellerCtx(), domain.ApprovalRequest{
		ProductID: "prod-soft-drink",
		EntryID:   "sale-any",
		Action:    domain.ApprovalActionApprove,
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin role error, got %v", err)
	}
}

func TestApplyCreditPaymentLifecycle(t *testing.T) {
	svc := newTestService()
	client := mustCreateClient(t, svc)

	_, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-sugar-1kg",
		Date:      testDate,
		Qty:       1,
		ClientID:  client.ID,
		Payments:  map[string]int64{domain.TenderCash: 550},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	credits, err := svc.ListClientCredits(sellerCtx(), client.ID)
	if err != nil || len(credits) != 1 {
		t.Fatalf("expected one credit, got %d (err=%v)", len(credits), err)
	}
	creditID := credits[0].ID

	// Pay more than remaining: rejected, balance untouched.
	_, err = svc.ApplyCreditPayment(sellerCtx(), domain.CreditPaymentRequest{CreditID: creditID, AmountCents: 2000})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for overpayment, got %v", err)
	}

	// Partial payment.
	updated, err := svc.ApplyCreditPayment(sellerCtx(), domain.CreditPaymentRequest{CreditID: creditID, AmountCents: 500})
	if err != nil {
		t.Fatalf("partial payment failed: %v", err)
	}
	if updated.RemainingCents != 500 || updated.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("unexpected state after partial payment: remaining=%d status=%s", updated.RemainingCents, updated.PaymentStatus)
	}

	// Exact remaining settles the obligation.
	updated, err = svc.ApplyCreditPayment(sellerCtx(), domain.CreditPaymentRequest{CreditID: creditID, AmountCents: 500})
	if err != nil {
		t.Fatalf("final payment failed: %v", err)
	}
	if updated.RemainingCents != 0 || updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected settled credit, got remaining=%d status=%s", updated.RemainingCents, updated.PaymentStatus)
	}

	// Further payments are rejected.
	_, err = svc.ApplyCreditPayment(sellerCtx(), domain.CreditPaymentRequest{CreditID: creditID, AmountCents: 100})
	if !errors.Is(err, store.ErrAlreadySettled) {
		t.Fatalf("expected already settled, got %v", err)
	}
}

func TestApplyCreditPaymentUnknownCredit(t *testing.T) {
	svc := newTestService()

	_, err := svc.ApplyCreditPayment(sellerCtx(), domain.CreditPaymentRequest{CreditID: "credit-missing", AmountCents: 100})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordBatchSharedPool(t *testing.T) {
	svc := newTestService()
	client := mustCreateClient(t, svc)

	// Three lines of 500 funded by 1000 cash: lines 1-2 paid, line 3 is
	// entirely credit.
	resp, err := svc.RecordBatch(sellerCtx(), domain.BatchSaleRequest{
		Date:     testDate,
		ClientID: client.ID,
		Payments: map[string]int64{domain.TenderCash: 1000},
		Lines: []domain.SaleLine{
			{ProductID: "prod-soft-drink", Qty: 1},
			{ProductID: "prod-soft-drink", Qty: 1},
			{ProductID: "prod-soft-drink", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("record batch failed: %v", err)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("unexpected batch errors: %v", resp.Errors)
	}
	if len(resp.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(resp.Entries))
	}

	if resp.Entries[0].PaymentStatus != domain.PaymentStatusPaid || resp.Entries[1].PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected first two lines PAID, got %s and %s", resp.Entries[0].PaymentStatus, resp.Entries[1].PaymentStatus)
	}
	if resp.Entries[2].PaymentStatus != domain.PaymentStatusPending || resp.Entries[2].CreditCents != 500 {
		t.Fatalf("expected third line PENDING with credit 500, got %s credit=%d", resp.Entries[2].PaymentStatus, resp.Entries[2].CreditCents)
	}

	credits, err := svc.ListClientCredits(sellerCtx(), client.ID)
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	if len(credits) != 1 || credits[0].RemainingCents != 500 {
		t.Fatalf("expected one credit of 500 remaining, got %v", credits)
	}
}

func TestRecordBatchFailedLineConsumesNothing(t *testing.T) {
	svc := newTestService()

	resp, err := svc.RecordBatch(sellerCtx(), domain.BatchSaleRequest{
		Date:     testDate,
		Payments: map[string]int64{domain.TenderCash: 500},
		Lines: []domain.SaleLine{
			{ProductID: "prod-unknown", Qty: 1},
			{ProductID: "prod-soft-drink", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("record batch failed: %v", err)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Index != 0 {
		t.Fatalf("expected one error for line 0, got %v", resp.Errors)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(resp.Entries))
	}
	// The failed first line left the pool intact, so the second line is
	// fully funded.
	if resp.Entries[0].PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected second line PAID, got %s", resp.Entries[0].PaymentStatus)
	}
}

func TestRecordBatchClearsClientCart(t *testing.T) {
	svc := newTestService()
	client := mustCreateClient(t, svc)

	if _, err := svc.AddCartLine(sellerCtx(), domain.CartAddRequest{
		ClientID:  client.ID,
		Date:      testDate,
		ProductID: "prod-soft-drink",
		Qty:       2,
	}); err != nil {
		t.Fatalf("add cart line failed: %v", err)
	}

	_, err := svc.RecordBatch(sellerCtx(), domain.BatchSaleRequest{
		Date:     testDate,
		ClientID: client.ID,
		Payments: map[string]int64{domain.TenderCash: 1000},
		Lines:    []domain.SaleLine{{ProductID: "prod-soft-drink", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("record batch failed: %v", err)
	}

	cart, err := svc.GetCart(sellerCtx(), client.ID)
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if len(cart) != 0 {
		t.Fatalf("expected empty cart after checkout, got %v", cart)
	}
}

func TestDailySummaryTotals(t *testing.T) {
	svc := newTestService()
	client := mustCreateClient(t, svc)

	if _, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-soft-drink",
		Date:      testDate,
		Qty:       2,
		Payments:  map[string]int64{domain.TenderCash: 1000},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if _, err := svc.RecordSale(sellerCtx(), domain.SaleRequest{
		ProductID: "prod-sugar-1kg",
		Date:      testDate,
		Qty:       1,
		ClientID:  client.ID,
		Payments:  map[string]int64{domain.TenderMomo: 1000},
	}); err != nil {
		t.Fatalf("record credit sale failed: %v", err)
	}

	summary, err := svc.DailySummary(sellerCtx(), testDate)
	if err != nil {
		t.Fatalf("daily summary failed: %v", err)
	}
	if summary.Entries != 2 {
		t.Fatalf("expected 2 entries, got %d", summary.Entries)
	}
	if summary.GrossCents != 2550 {
		t.Fatalf("expected gross 2550, got %d", summary.GrossCents)
	}
	if summary.PaidCents != 2000 || summary.CreditCents != 550 {
		t.Fatalf("unexpected totals: paid=%d credit=%d", summary.PaidCents, summary.CreditCents)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(sellerCtx(), domain.ProductCreateRequest{
		Name:       "Salt 500g",
		Category:   "grocery",
		PriceCents: 300,
		Quantity:   50,
	})
	if err == nil || !strings.Contains(err.Error(), "admin role required") {
		t.Fatalf("expected admin role error, got %v", err)
	}
}

func TestRestockProduct(t *testing.T) {
	svc := newTestService()

	before := productQty(t, svc, "prod-bread-loaf")
	updated, err := svc.RestockProduct(adminCtx(), "prod-bread-loaf", 10)
	if err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	if updated.Quantity != before+10 {
		t.Fatalf("expected %d after restock, got %d", before+10, updated.Quantity)
	}
}
