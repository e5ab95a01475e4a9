package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/ledger"
	"tillbook/backend/internal/logging"
	"tillbook/backend/internal/report"
	"tillbook/backend/internal/store"
	"tillbook/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	reports *report.Summarizer
	clock   func() time.Time
}

func New(repo store.Repository, reports *report.Summarizer) *Service {
	if reports == nil {
		reports = report.NewSummarizer(nil, 0)
	}

	return &Service{
		repo:    repo,
		reports: reports,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.Brand = strings.TrimSpace(req.Brand)

	if req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrValidation
	}
	if req.PriceCents < 1 || req.Quantity < 0 {
		return domain.Product{}, store.ErrValidation
	}

	now := s.clock()
	product := domain.Product{
		ID:         xid.New("prod"),
		Name:       req.Name,
		Category:   req.Category,
		Brand:      req.Brand,
		PriceCents: req.PriceCents,
		Quantity:   req.Quantity,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,qty=%d", created.Name, created.PriceCents, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if category == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Category = category
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 1 {
			return domain.Product{}, store.ErrValidation
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	updated.UpdatedAt = s.clock()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.PriceCents))
	return *saved, nil
}

func (s *Service) RestockProduct(ctx context.Context, id string, qty int) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Product{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" || qty < 1 {
		return domain.Product{}, store.ErrValidation
	}

	updated, err := s.repo.AdjustStock(ctx, id, qty, s.clock())
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_restock", "product", updated.ID, fmt.Sprintf("added=%d,qty=%d", qty, updated.Quantity))
	return *updated, nil
}

// RecordSale validates and allocates the payment for a single sale, then
// hands the guarded stock mutation to the store. The credit obligation and
// cart clearing run after the ledger write; failures there are reported with
// the step that failed rather than rolling back the recorded sale.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.SaleEntry, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ProductID == "" || req.Qty < 1 {
		return domain.SaleEntry{}, store.ErrValidation
	}

	date, err := s.normalizeDate(req.Date)
	if err != nil {
		return domain.SaleEntry{}, err
	}

	if req.ClientID != "" {
		if _, err := s.repo.GetClientByID(ctx, req.ClientID); err != nil {
			return domain.SaleEntry{}, fmt.Errorf("client %s: %w", req.ClientID, err)
		}
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.SaleEntry{}, err
	}

	total := int64(req.Qty) * product.PriceCents
	alloc, err := ledger.Allocate(total, req.Payments)
	if err != nil {
		return domain.SaleEntry{}, err
	}
	if alloc.CreditCents > 0 && req.ClientID == "" {
		return domain.SaleEntry{}, fmt.Errorf("%w: credit portion requires a client", store.ErrValidation)
	}

	entry := domain.SaleEntry{
		ID:               xid.New("sale"),
		ProductID:        product.ID,
		Date:             date,
		SoldQty:          req.Qty,
		PriceAtSaleCents: product.PriceCents,
		Payments:         alloc.Payments,
		AmountPaidCents:  alloc.PaidCents,
		CreditCents:      alloc.CreditCents,
		PaymentStatus:    alloc.PaymentStatus,
		Status:           domain.EntryStatusComplete,
		ClientID:         req.ClientID,
		CreatedAt:        s.clock(),
	}

	recorded, err := s.repo.RecordSale(ctx, entry)
	if err != nil {
		return domain.SaleEntry{}, err
	}

	if alloc.CreditCents > 0 {
		if err := s.openCredit(ctx, *recorded); err != nil {
			return *recorded, fmt.Errorf("sale %s recorded but credit ledger update failed: %w", recorded.ID, err)
		}
	}
	if req.ClientID != "" {
		if err := s.repo.ClearCart(ctx, req.ClientID); err != nil {
			logging.S().Warnf("clear cart for client %s after sale %s: %v", req.ClientID, recorded.ID, err)
		}
	}

	s.logAudit(ctx, "sale_record", "sale", recorded.ID, fmt.Sprintf("product=%s,qty=%d,status=%s", recorded.ProductID, recorded.SoldQty, recorded.PaymentStatus))
	return *recorded, nil
}

// RecordBatch settles an ordered list of sale lines from one shared payment
// pool. Each line draws cash first, then momo; the shortfall becomes that
// line's credit. A failed line consumes nothing from the pool and later
// lines keep going.
func (s *Service) RecordBatch(ctx context.Context, req domain.BatchSaleRequest) (domain.BatchSaleResponse, error) {
	if len(req.Lines) == 0 {
		return domain.BatchSaleResponse{}, fmt.Errorf("%w: at least one sale line required", store.ErrValidation)
	}

	date, err := s.normalizeDate(req.Date)
	if err != nil {
		return domain.BatchSaleResponse{}, err
	}

	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID != "" {
		if _, err := s.repo.GetClientByID(ctx, req.ClientID); err != nil {
			return domain.BatchSaleResponse{}, fmt.Errorf("client %s: %w", req.ClientID, err)
		}
	}

	pool, err := ledger.NewPool(req.Payments)
	if err != nil {
		return domain.BatchSaleResponse{}, err
	}

	resp := domain.BatchSaleResponse{Entries: make([]domain.SaleEntry, 0, len(req.Lines))}
	for i, line := range req.Lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Qty < 1 {
			resp.Errors = append(resp.Errors, domain.BatchLineError{Index: i, ProductID: line.ProductID, Error: "invalid sale line"})
			continue
		}

		product, err := s.repo.GetProductByID(ctx, line.ProductID)
		if err != nil {
			resp.Errors = append(resp.Errors, domain.BatchLineError{Index: i, ProductID: line.ProductID, Error: err.Error()})
			continue
		}

		total := int64(line.Qty) * product.PriceCents
		alloc, rest := pool.Draw(total)
		if alloc.CreditCents > 0 && req.ClientID == "" {
			resp.Errors = append(resp.Errors, domain.BatchLineError{Index: i, ProductID: line.ProductID, Error: "credit portion requires a client"})
			continue
		}

		entry := domain.SaleEntry{
			ID:               xid.New("sale"),
			ProductID:        product.ID,
			Date:             date,
			SoldQty:          line.Qty,
			PriceAtSaleCents: product.PriceCents,
			Payments:         alloc.Payments,
			AmountPaidCents:  alloc.PaidCents,
			CreditCents:      alloc.CreditCents,
			PaymentStatus:    alloc.PaymentStatus,
			Status:           domain.EntryStatusComplete,
			ClientID:         req.ClientID,
			CreatedAt:        s.clock(),
		}

		recorded, err := s.repo.RecordSale(ctx, entry)
		if err != nil {
			resp.Errors = append(resp.Errors, domain.BatchLineError{Index: i, ProductID: line.ProductID, Error: err.Error()})
			continue
		}
		pool = rest

		if alloc.CreditCents > 0 {
			if err := s.openCredit(ctx, *recorded); err != nil {
				resp.Errors = append(resp.Errors, domain.BatchLineError{Index: i, ProductID: line.ProductID, Error: fmt.Sprintf("sale recorded but credit ledger update failed: %v", err)})
			}
		}
		resp.Entries = append(resp.Entries, *recorded)
	}

	if req.ClientID != "" && len(resp.Entries) > 0 {
		if err := s.repo.ClearCart(ctx, req.ClientID); err != nil {
			logging.S().Warnf("clear cart for client %s after batch sale: %v", req.ClientID, err)
		}
	}

	s.logAudit(ctx, "sale_batch", "sale", date, fmt.Sprintf("lines=%d,recorded=%d,failed=%d", len(req.Lines), len(resp.Entries), len(resp.Errors)))
	return resp, nil
}

func (s *Service) openCredit(ctx context.Context, entry domain.SaleEntry) error {
	_, err := s.repo.CreateCredit(ctx, domain.CreditObligation{
		ID:                xid.New("credit"),
		ProductID:         entry.ProductID,
		ClientID:          entry.ClientID,
		Qty:               entry.SoldQty,
		PricePerUnitCents: entry.PriceAtSaleCents,
		AmountPaidCents:   entry.AmountPaidCents,
		RemainingCents:    entry.CreditCents,
		CreditDate:        entry.Date,
		Status:            domain.CreditStatusLoaned,
		PaymentStatus:     entry.PaymentStatus,
		CreatedAt:         entry.CreatedAt,
	})
	return err
}

func (s *Service) SalesByDate(ctx context.Context, date string) ([]domain.SaleEntry, error) {
	normalized, err := s.normalizeDate(date)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalesByDate(ctx, normalized)
}

func (s *Service) RequestCancellation(ctx context.Context, req domain.CancellationRequest) (domain.SaleEntry, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.EntryID = strings.TrimSpace(req.EntryID)
	if req.ProductID == "" || req.EntryID == "" {
		return domain.SaleEntry{}, store.ErrValidation
	}
	if _, err := time.Parse(domain.DateLayout, req.Date); err != nil {
		return domain.SaleEntry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}

	updated, err := s.repo.RequestCancellation(ctx, req.ProductID, req.Date, req.EntryID, s.clock())
	if err != nil {
		return domain.SaleEntry{}, err
	}

	s.logAudit(ctx, "cancel_request", "sale", updated.ID, fmt.Sprintf("product=%s,date=%s", updated.ProductID, updated.Date))
	return *updated, nil
}

// ResolveApproval settles a pending cancellation request. Approving keeps
// the sale (status back to complete, stock untouched); rejecting cancels the
// entry and restores the sold quantity to stock.
func (s *Service) ResolveApproval(ctx context.Context, req domain.ApprovalRequest) (domain.SaleEntry, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.SaleEntry{}, fmt.Errorf("admin role required")
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.EntryID = strings.TrimSpace(req.EntryID)
	action := strings.ToLower(strings.TrimSpace(req.Action))
	if req.ProductID == "" || req.EntryID == "" {
		return domain.SaleEntry{}, store.ErrValidation
	}
	if action != domain.ApprovalActionApprove && action != domain.ApprovalActionReject {
		return domain.SaleEntry{}, fmt.Errorf("%w: action must be approve or reject", store.ErrValidation)
	}

	updated, err := s.repo.ResolveCancellation(ctx, req.ProductID, req.EntryID, action == domain.ApprovalActionApprove, s.clock())
	if err != nil {
		return domain.SaleEntry{}, err
	}

	s.logAudit(ctx, "cancel_"+action, "sale", updated.ID, fmt.Sprintf("product=%s,status=%s", updated.ProductID, updated.Status))
	return *updated, nil
}

func (s *Service) ListPendingCancellations(ctx context.Context) ([]domain.PendingCancellation, error) {
	return s.repo.ListPendingCancellations(ctx)
}

func (s *Service) ApplyCreditPayment(ctx context.Context, req domain.CreditPaymentRequest) (domain.CreditObligation, error) {
	req.CreditID = strings.TrimSpace(req.CreditID)
	if req.CreditID == "" {
		return domain.CreditObligation{}, store.ErrValidation
	}

	updated, err := s.repo.ApplyCreditPayment(ctx, req.CreditID, req.AmountCents, s.clock())
	if err != nil {
		return domain.CreditObligation{}, err
	}

	s.logAudit(ctx, "credit_payment", "credit", updated.ID, fmt.Sprintf("amount=%d,remaining=%d,status=%s", req.AmountCents, updated.RemainingCents, updated.PaymentStatus))
	return *updated, nil
}

func (s *Service) ListClientCredits(ctx context.Context, clientID string) ([]domain.CreditObligation, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, store.ErrValidation
	}
	if _, err := s.repo.GetClientByID(ctx, clientID); err != nil {
		return nil, err
	}
	return s.repo.ListCreditsByClient(ctx, clientID)
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Telephone = strings.TrimSpace(req.Telephone)
	if req.Name == "" || req.Telephone == "" {
		return domain.Client{}, store.ErrValidation
	}

	client := domain.Client{
		ID:        xid.New("client"),
		Name:      req.Name,
		Telephone: req.Telephone,
		CreatedAt: s.clock(),
	}

	created, err := s.repo.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}

	s.logAudit(ctx, "client_create", "client", created.ID, fmt.Sprintf("name=%s", created.Name))
	return *created, nil
}

func (s *Service) ListClients(ctx context.Context) ([]domain.ClientWithCredits, error) {
	clients, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]domain.ClientWithCredits, 0, len(clients))
	for _, client := range clients {
		credits, err := s.repo.ListCreditsByClient(ctx, client.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.ClientWithCredits{Client: client, Credits: credits})
	}
	return result, nil
}

func (s *Service) AddCartLine(ctx context.Context, req domain.CartAddRequest) (domain.CartLine, error) {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ClientID == "" || req.ProductID == "" || req.Qty < 1 {
		return domain.CartLine{}, store.ErrValidation
	}

	date, err := s.normalizeDate(req.Date)
	if err != nil {
		return domain.CartLine{}, err
	}

	line := domain.CartLine{
		ID:        xid.New("cart"),
		ProductID: req.ProductID,
		Qty:       req.Qty,
	}
	added, err := s.repo.AddCartLine(ctx, req.ClientID, date, line)
	if err != nil {
		return domain.CartLine{}, err
	}
	return *added, nil
}

func (s *Service) RemoveCartLine(ctx context.Context, req domain.CartRemoveRequest) error {
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.LineID = strings.TrimSpace(req.LineID)
	if req.ClientID == "" || req.Date == "" || req.LineID == "" {
		return store.ErrValidation
	}
	return s.repo.RemoveCartLine(ctx, req.ClientID, req.Date, req.LineID)
}

func (s *Service) ClearCart(ctx context.Context, req domain.CartClearRequest) error {
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		return store.ErrValidation
	}
	return s.repo.ClearCart(ctx, req.ClientID)
}

func (s *Service) GetCart(ctx context.Context, clientID string) (map[string][]domain.CartLine, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.GetCart(ctx, clientID)
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	normalized, err := s.normalizeDate(date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	entries, err := s.repo.ListSalesByDate(ctx, normalized)
	if err != nil {
		return domain.DailySummary{}, err
	}
	return s.reports.Summarize(ctx, normalized, entries), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	date = strings.TrimSpace(date)
	if date != "" {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, date, limit)
}

// normalizeDate validates an explicit YYYY-MM-DD day bucket, defaulting to
// the current day when empty. Dates always travel as explicit parameters so
// recording into past or future buckets stays possible (and testable).
func (s *Service) normalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return s.clock().Format(domain.DateLayout), nil
	}
	if _, err := time.Parse(domain.DateLayout, raw); err != nil {
		return "", fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}
	return raw, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock(),
	})
	if err != nil {
		logging.S().Warnf("write audit log action=%s entity=%s: %v", action, entityID, err)
	}
}
