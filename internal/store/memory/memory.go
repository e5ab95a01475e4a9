package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/logging"
	"tillbook/backend/internal/store"
	"tillbook/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	salesByDate     map[string][]domain.SaleEntry
	creditsByID     map[string]domain.CreditObligation
	clientsByID     map[string]domain.Client
	cartsByClient   map[string]map[string][]domain.CartLine
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		logging.S().Warn("memory store: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"seller", sellerPwd, "seller"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(fmt.Sprintf("memory store: hash seed password for %s: %v", u.username, err))
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-sugar-1kg", Name: "Sugar 1kg", Category: "grocery", Brand: "Dzata", PriceCents: 1550, Quantity: 120},
		{ID: "prod-rice-5kg", Name: "Rice 5kg", Category: "grocery", Brand: "Royal Farms", PriceCents: 9800, Quantity: 80},
		{ID: "prod-oil-1l", Name: "Cooking Oil 1L", Category: "grocery", Brand: "Frytol", PriceCents: 3400, Quantity: 95},
		{ID: "prod-milk-400g", Name: "Milk Powder 400g", Category: "dairy", Brand: "Ideal", PriceCents: 4200, Quantity: 60},
		{ID: "prod-tomato-paste", Name: "Tomato Paste 210g", Category: "grocery", Brand: "Gino", PriceCents: 900, Quantity: 200},
		{ID: "prod-soap-bar", Name: "Soap Bar", Category: "household", Brand: "Key", PriceCents: 700, Quantity: 150},
		{ID: "prod-soft-drink", Name: "Soft Drink 500ml", Category: "beverage", Brand: "Bel", PriceCents: 500, Quantity: 240},
		{ID: "prod-bread-loaf", Name: "Bread Loaf", Category: "bakery", PriceCents: 1200, Quantity: 40},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	return &Store{
		products:        productMap,
		salesByDate:     make(map[string][]domain.SaleEntry),
		creditsByID:     make(map[string]domain.CreditObligation),
		clientsByID:     make(map[string]domain.Client),
		cartsByClient:   make(map[string]map[string][]domain.CartLine),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, fmt.Errorf("%w: product name already exists", store.ErrValidation)
		}
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int, at time.Time) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: have %d, requested %d", store.ErrInsufficientStock, product.Quantity, -delta)
	}

	product.Quantity += delta
	product.UpdatedAt = at
	s.products[productID] = product
	updated := product
	return &updated, nil
}

// RecordSale is the guarded write at the heart of the sale ledger: the stock
// check, the decrement and the day-bucket append happen under one lock so a
// concurrent sale can never oversell.
func (s *Store) RecordSale(_ context.Context, entry domain.SaleEntry) (*domain.SaleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" || entry.ProductID == "" || entry.Date == "" || entry.SoldQty < 1 {
		return nil, store.ErrValidation
	}

	product, exists := s.products[entry.ProductID]
	if !exists || !product.Active {
		return nil, store.ErrNotFound
	}
	if product.Quantity < entry.SoldQty {
		return nil, fmt.Errorf("%w: have %d, requested %d", store.ErrInsufficientStock, product.Quantity, entry.SoldQty)
	}

	entry.InitialQty = product.Quantity
	entry.RemainingQty = product.Quantity - entry.SoldQty
	if entry.Status == "" {
		entry.Status = domain.EntryStatusComplete
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	product.Quantity -= entry.SoldQty
	product.UpdatedAt = entry.CreatedAt
	s.products[entry.ProductID] = product

	s.salesByDate[entry.Date] = append(s.salesByDate[entry.Date], cloneEntry(entry))
	created := cloneEntry(entry)
	return &created, nil
}

func (s *Store) ListSalesByDate(_ context.Context, date string) ([]domain.SaleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.salesByDate[date]
	entries := make([]domain.SaleEntry, 0, len(bucket))
	for _, entry := range bucket {
		entries = append(entries, cloneEntry(entry))
	}
	return entries, nil
}

func (s *Store) GetSaleEntry(_ context.Context, productID string, date string, entryID string) (*domain.SaleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.salesByDate[date] {
		if entry.ProductID == productID && entry.ID == entryID {
			found := cloneEntry(entry)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RequestCancellation(_ context.Context, productID string, date string, entryID string, at time.Time) (*domain.SaleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.salesByDate[date]
	for i := range bucket {
		if bucket[i].ProductID != productID || bucket[i].ID != entryID {
			continue
		}
		if bucket[i].Status != domain.EntryStatusComplete {
			return nil, fmt.Errorf("%w: entry is %s", store.ErrInvalidState, bucket[i].Status)
		}
		bucket[i].Status = domain.EntryStatusRequestCancel
		bucket[i].UpdatedAt = at
		updated := cloneEntry(bucket[i])
		return &updated, nil
	}
	return nil, store.ErrNotFound
}

// ResolveCancellation scans every day bucket because the approval screen
// only knows the product and entry id, not the sale date. The entry must be
// in RequestCancel: resolving twice would otherwise restock twice.
func (s *Store) ResolveCancellation(_ context.Context, productID string, entryID string, approve bool, at time.Time) (*domain.SaleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for date, bucket := range s.salesByDate {
		for i := range bucket {
			if bucket[i].ProductID != productID || bucket[i].ID != entryID {
				continue
			}
			if bucket[i].Status != domain.EntryStatusRequestCancel {
				return nil, fmt.Errorf("%w: entry is %s", store.ErrInvalidState, bucket[i].Status)
			}

			if approve {
				bucket[i].Status = domain.EntryStatusComplete
			} else {
				product, exists := s.products[productID]
				if !exists {
					return nil, store.ErrNotFound
				}
				product.Quantity += bucket[i].SoldQty
				product.UpdatedAt = at
				s.products[productID] = product
				bucket[i].Status = domain.EntryStatusCancelled
			}
			bucket[i].UpdatedAt = at
			s.salesByDate[date] = bucket
			updated := cloneEntry(bucket[i])
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListPendingCancellations(_ context.Context) ([]domain.PendingCancellation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]domain.PendingCancellation, 0)
	for _, bucket := range s.salesByDate {
		for _, entry := range bucket {
			if entry.Status != domain.EntryStatusRequestCancel {
				continue
			}
			name := ""
			if product, exists := s.products[entry.ProductID]; exists {
				name = product.Name
			}
			pending = append(pending, domain.PendingCancellation{
				ProductID:   entry.ProductID,
				ProductName: name,
				Entry:       cloneEntry(entry),
			})
		}
	}

	slices.SortFunc(pending, func(a, b domain.PendingCancellation) int {
		if a.Entry.UpdatedAt.Equal(b.Entry.UpdatedAt) {
			return cmpString(a.Entry.ID, b.Entry.ID)
		}
		if a.Entry.UpdatedAt.After(b.Entry.UpdatedAt) {
			return -1
		}
		return 1
	})
	return pending, nil
}

func (s *Store) CreateCredit(_ context.Context, credit domain.CreditObligation) (*domain.CreditObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if credit.ID == "" || credit.ProductID == "" || credit.ClientID == "" || credit.Qty < 1 {
		return nil, store.ErrValidation
	}
	if credit.RemainingCents < 0 || credit.AmountPaidCents < 0 {
		return nil, store.ErrValidation
	}
	if credit.AmountPaidCents+credit.RemainingCents != int64(credit.Qty)*credit.PricePerUnitCents {
		return nil, fmt.Errorf("%w: credit amounts do not add up", store.ErrValidation)
	}
	if _, exists := s.clientsByID[credit.ClientID]; !exists {
		return nil, store.ErrNotFound
	}

	if credit.Status == "" {
		credit.Status = domain.CreditStatusLoaned
	}
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = time.Now().UTC()
	}
	credit.UpdatedAt = credit.CreatedAt

	s.creditsByID[credit.ID] = credit
	created := credit
	return &created, nil
}

func (s *Store) GetCreditByID(_ context.Context, creditID string) (*domain.CreditObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credit, exists := s.creditsByID[creditID]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := credit
	return &found, nil
}

func (s *Store) ApplyCreditPayment(_ context.Context, creditID string, amountCents int64, at time.Time) (*domain.CreditObligation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	credit, exists := s.creditsByID[creditID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if credit.PaymentStatus == domain.PaymentStatusPaid || credit.RemainingCents == 0 {
		return nil, store.ErrAlreadySettled
	}
	if amountCents < 1 {
		return nil, fmt.Errorf("%w: payment must be positive", store.ErrInvalidAmount)
	}
	if amountCents > credit.RemainingCents {
		return nil, fmt.Errorf("%w: payment %d exceeds remaining balance %d", store.ErrInvalidAmount, amountCents, credit.RemainingCents)
	}

	credit.AmountPaidCents += amountCents
	credit.RemainingCents -= amountCents
	if credit.RemainingCents == 0 {
		credit.PaymentStatus = domain.PaymentStatusPaid
	} else {
		credit.PaymentStatus = domain.PaymentStatusPartial
	}
	credit.UpdatedAt = at

	s.creditsByID[creditID] = credit
	updated := credit
	return &updated, nil
}

func (s *Store) ListCreditsByClient(_ context.Context, clientID string) ([]domain.CreditObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credits := make([]domain.CreditObligation, 0)
	for _, credit := range s.creditsByID {
		if credit.ClientID != clientID {
			continue
		}
		credits = append(credits, credit)
	}

	slices.SortFunc(credits, func(a, b domain.CreditObligation) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return credits, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" || client.Name == "" || client.Telephone == "" {
		return nil, store.ErrValidation
	}
	for _, existing := range s.clientsByID {
		if existing.Telephone == client.Telephone {
			return nil, fmt.Errorf("%w: telephone already registered", store.ErrValidation)
		}
	}

	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	s.clientsByID[client.ID] = client
	created := client
	return &created, nil
}

func (s *Store) ListClients(_ context.Context) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]domain.Client, 0, len(s.clientsByID))
	for _, client := range s.clientsByID {
		clients = append(clients, client)
	}
	slices.SortFunc(clients, func(a, b domain.Client) int {
		return cmpString(a.Name, b.Name)
	})
	return clients, nil
}

func (s *Store) GetClientByID(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, exists := s.clientsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := client
	return &found, nil
}

func (s *Store) AddCartLine(_ context.Context, clientID string, date string, line domain.CartLine) (*domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clientID == "" || date == "" || line.ID == "" || line.ProductID == "" || line.Qty < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.clientsByID[clientID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.products[line.ProductID]; !exists {
		return nil, store.ErrNotFound
	}

	cart := s.cartsByClient[clientID]
	if cart == nil {
		cart = make(map[string][]domain.CartLine)
		s.cartsByClient[clientID] = cart
	}
	cart[date] = append(cart[date], line)
	added := line
	return &added, nil
}

func (s *Store) RemoveCartLine(_ context.Context, clientID string, date string, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartsByClient[clientID]
	lines := cart[date]
	for i := range lines {
		if lines[i].ID != lineID {
			continue
		}
		cart[date] = append(lines[:i:i], lines[i+1:]...)
		if len(cart[date]) == 0 {
			delete(cart, date)
		}
		return nil
	}
	return store.ErrNotFound
}

// ClearCart wipes every day bucket for the client. It is idempotent so a
// checkout that races a manual clear does not fail.
func (s *Store) ClearCart(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cartsByClient, clientID)
	return nil
}

func (s *Store) GetCart(_ context.Context, clientID string) (map[string][]domain.CartLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.clientsByID[clientID]; !exists {
		return nil, store.ErrNotFound
	}

	cart := make(map[string][]domain.CartLine, len(s.cartsByClient[clientID]))
	for date, lines := range s.cartsByClient[clientID] {
		copied := make([]domain.CartLine, len(lines))
		copy(copied, lines)
		cart[date] = copied
	}
	return cart, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, date string, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if date != "" && entry.CreatedAt.UTC().Format(domain.DateLayout) != date {
			continue
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrValidation)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneEntry(entry domain.SaleEntry) domain.SaleEntry {
	copied := entry
	if entry.Payments != nil {
		copied.Payments = make(map[string]int64, len(entry.Payments))
		for tender, amount := range entry.Payments {
			copied.Payments[tender] = amount
		}
	}
	return copied
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
