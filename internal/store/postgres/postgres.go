// Package postgres implements the repository on PostgreSQL through
// database/sql with the pgx stdlib driver. Guarded mutations (recording a
// sale, resolving a cancellation, applying a credit payment) run inside
// transactions with row locks so concurrent writers cannot oversell stock or
// settle a credit twice.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			brand TEXT,
			price_cents BIGINT NOT NULL,
			quantity INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS products_name_lower_idx ON products (lower(name))`,
		`CREATE TABLE IF NOT EXISTS sale_entries (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id),
			sale_date TEXT NOT NULL,
			initial_qty INT NOT NULL,
			sold_qty INT NOT NULL,
			remaining_qty INT NOT NULL,
			price_at_sale_cents BIGINT NOT NULL,
			payments JSONB NOT NULL DEFAULT '{}',
			amount_paid_cents BIGINT NOT NULL,
			credit_cents BIGINT NOT NULL,
			payment_status TEXT NOT NULL,
			status TEXT NOT NULL,
			client_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS sale_entries_date_idx ON sale_entries (sale_date)`,
		`CREATE INDEX IF NOT EXISTS sale_entries_status_idx ON sale_entries (status)`,
		`CREATE TABLE IF NOT EXISTS credits (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			qty INT NOT NULL,
			price_per_unit_cents BIGINT NOT NULL,
			amount_paid_cents BIGINT NOT NULL,
			remaining_cents BIGINT NOT NULL,
			credit_date TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS credits_client_idx ON credits (client_id)`,
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			telephone TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES clients(id),
			cart_date TEXT NOT NULL,
			product_id TEXT NOT NULL,
			qty INT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS cart_lines_client_idx ON cart_lines (client_id, cart_date)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor_username TEXT,
			actor_role TEXT,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, COALESCE(brand, ''), price_cents, quantity, active, created_at, updated_at
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.PriceCents, &p.Quantity, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrValidation
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, brand, price_cents, quantity, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, product.ID, product.Name, product.Category, nullIfEmpty(product.Brand), product.PriceCents, product.Quantity, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name already exists", store.ErrValidation)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `
		SELECT id, name, category, COALESCE(brand, ''), price_cents, quantity, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id))
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrValidation
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, brand = $4, price_cents = $5, active = $6, updated_at = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Category, nullIfEmpty(product.Brand), product.PriceCents, product.Active, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product name already exists", store.ErrValidation)
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int, at time.Time) (*domain.Product, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if quantity+delta < 0 {
		return nil, fmt.Errorf("%w: have %d, requested %d", store.ErrInsufficientStock, quantity, -delta)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1
	`, productID, delta, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProductByID(ctx, productID)
}

const saleEntryColumns = `id, product_id, sale_date, initial_qty, sold_qty, remaining_qty,
	price_at_sale_cents, payments, amount_paid_cents, credit_cents, payment_status, status,
	COALESCE(client_id, ''), created_at, updated_at`

func (s *Store) RecordSale(ctx context.Context, entry domain.SaleEntry) (*domain.SaleEntry, error) {
	if entry.ID == "" || entry.ProductID == "" || entry.Date == "" || entry.SoldQty < 1 {
		return nil, store.ErrValidation
	}
	if entry.Status == "" {
		entry.Status = domain.EntryStatusComplete
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	payments, err := json.Marshal(entry.Payments)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		quantity int
		active   bool
	)
	err = tx.QueryRowContext(ctx, `
		SELECT quantity, active FROM products WHERE id = $1 FOR UPDATE
	`, entry.ProductID).Scan(&quantity, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, store.ErrNotFound
	}
	if quantity < entry.SoldQty {
		return nil, fmt.Errorf("%w: have %d, requested %d", store.ErrInsufficientStock, quantity, entry.SoldQty)
	}

	entry.InitialQty = quantity
	entry.RemainingQty = quantity - entry.SoldQty

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity - $2, updated_at = $3 WHERE id = $1
	`, entry.ProductID, entry.SoldQty, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sale_entries (
			id, product_id, sale_date, initial_qty, sold_qty, remaining_qty,
			price_at_sale_cents, payments, amount_paid_cents, credit_cents,
			payment_status, status, client_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
	`, entry.ID, entry.ProductID, entry.Date, entry.InitialQty, entry.SoldQty, entry.RemainingQty,
		entry.PriceAtSaleCents, payments, entry.AmountPaidCents, entry.CreditCents,
		entry.PaymentStatus, entry.Status, nullIfEmpty(entry.ClientID), entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) ListSalesByDate(ctx context.Context, date string) ([]domain.SaleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleEntryColumns+`
		FROM sale_entries
		WHERE sale_date = $1
		ORDER BY created_at ASC, id ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.SaleEntry, 0, 32)
	for rows.Next() {
		entry, err := scanSaleEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func (s *Store) GetSaleEntry(ctx context.Context, productID string, date string, entryID string) (*domain.SaleEntry, error) {
	return scanSaleEntry(s.db.QueryRowContext(ctx, `
		SELECT `+saleEntryColumns+`
		FROM sale_entries
		WHERE product_id = $1 AND sale_date = $2 AND id = $3
	`, productID, date, entryID))
}

func (s *Store) RequestCancellation(ctx context.Context, productID string, date string, entryID string, at time.Time) (*domain.SaleEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status
		FROM sale_entries
		WHERE product_id = $1 AND sale_date = $2 AND id = $3
		FOR UPDATE
	`, productID, date, entryID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != domain.EntryStatusComplete {
		return nil, fmt.Errorf("%w: entry is %s", store.ErrInvalidState, status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sale_entries SET status = $2, updated_at = $3 WHERE id = $1
	`, entryID, domain.EntryStatusRequestCancel, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSaleEntry(ctx, productID, date, entryID)
}

// ResolveCancellation locates the entry by product and id alone; the approval
// screen does not carry the sale date. The RequestCancel guard and the
// conditional restock run in one transaction so a repeated reject can never
// restock twice.
func (s *Store) ResolveCancellation(ctx context.Context, productID string, entryID string, approve bool, at time.Time) (*domain.SaleEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		status  string
		date    string
		soldQty int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, sale_date, sold_qty
		FROM sale_entries
		WHERE product_id = $1 AND id = $2
		FOR UPDATE
	`, productID, entryID).Scan(&status, &date, &soldQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if status != domain.EntryStatusRequestCancel {
		return nil, fmt.Errorf("%w: entry is %s", store.ErrInvalidState, status)
	}

	newStatus := domain.EntryStatusComplete
	if !approve {
		newStatus = domain.EntryStatusCancelled
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1
		`, productID, soldQty, at)
		if err != nil {
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil, store.ErrNotFound
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sale_entries SET status = $2, updated_at = $3 WHERE id = $1
	`, entryID, newStatus, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSaleEntry(ctx, productID, date, entryID)
}

func (s *Store) ListPendingCancellations(ctx context.Context) ([]domain.PendingCancellation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.product_id, e.sale_date, e.initial_qty, e.sold_qty, e.remaining_qty,
			e.price_at_sale_cents, e.payments, e.amount_paid_cents, e.credit_cents,
			e.payment_status, e.status, COALESCE(e.client_id, ''), e.created_at, e.updated_at,
			COALESCE(p.name, '')
		FROM sale_entries e
		LEFT JOIN products p ON p.id = e.product_id
		WHERE e.status = $1
		ORDER BY e.updated_at DESC, e.id ASC
	`, domain.EntryStatusRequestCancel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pending := make([]domain.PendingCancellation, 0, 16)
	for rows.Next() {
		var (
			entry    domain.SaleEntry
			payments []byte
			name     string
		)
		err := rows.Scan(&entry.ID, &entry.ProductID, &entry.Date, &entry.InitialQty, &entry.SoldQty,
			&entry.RemainingQty, &entry.PriceAtSaleCents, &payments, &entry.AmountPaidCents,
			&entry.CreditCents, &entry.PaymentStatus, &entry.Status, &entry.ClientID,
			&entry.CreatedAt, &entry.UpdatedAt, &name)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payments, &entry.Payments); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entry.UpdatedAt = entry.UpdatedAt.UTC()
		pending = append(pending, domain.PendingCancellation{
			ProductID:   entry.ProductID,
			ProductName: name,
			Entry:       entry,
		})
	}
	return pending, rows.Err()
}

const creditColumns = `id, product_id, client_id, qty, price_per_unit_cents, amount_paid_cents,
	remaining_cents, credit_date, status, payment_status, created_at, updated_at`

func (s *Store) CreateCredit(ctx context.Context, credit domain.CreditObligation) (*domain.CreditObligation, error) {
	if credit.ID == "" || credit.ProductID == "" || credit.ClientID == "" || credit.Qty < 1 {
		return nil, store.ErrValidation
	}
	if credit.AmountPaidCents < 0 || credit.RemainingCents < 0 {
		return nil, store.ErrValidation
	}
	if credit.AmountPaidCents+credit.RemainingCents != int64(credit.Qty)*credit.PricePerUnitCents {
		return nil, fmt.Errorf("%w: credit amounts do not add up", store.ErrValidation)
	}
	if credit.Status == "" {
		credit.Status = domain.CreditStatusLoaned
	}
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = time.Now().UTC()
	}
	credit.UpdatedAt = credit.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credits (
			id, product_id, client_id, qty, price_per_unit_cents, amount_paid_cents,
			remaining_cents, credit_date, status, payment_status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	`, credit.ID, credit.ProductID, credit.ClientID, credit.Qty, credit.PricePerUnitCents,
		credit.AmountPaidCents, credit.RemainingCents, credit.CreditDate, credit.Status,
		credit.PaymentStatus, credit.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := credit
	return &created, nil
}

func (s *Store) GetCreditByID(ctx context.Context, creditID string) (*domain.CreditObligation, error) {
	return scanCredit(s.db.QueryRowContext(ctx, `
		SELECT `+creditColumns+` FROM credits WHERE id = $1
	`, creditID))
}

func (s *Store) ApplyCreditPayment(ctx context.Context, creditID string, amountCents int64, at time.Time) (*domain.CreditObligation, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		remaining     int64
		paymentStatus string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT remaining_cents, payment_status FROM credits WHERE id = $1 FOR UPDATE
	`, creditID).Scan(&remaining, &paymentStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if paymentStatus == domain.PaymentStatusPaid || remaining == 0 {
		return nil, store.ErrAlreadySettled
	}
	if amountCents < 1 {
		return nil, fmt.Errorf("%w: payment must be positive", store.ErrInvalidAmount)
	}
	if amountCents > remaining {
		return nil, fmt.Errorf("%w: payment %d exceeds remaining balance %d", store.ErrInvalidAmount, amountCents, remaining)
	}

	newStatus := domain.PaymentStatusPartial
	if amountCents == remaining {
		newStatus = domain.PaymentStatusPaid
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE credits
		SET amount_paid_cents = amount_paid_cents + $2,
			remaining_cents = remaining_cents - $2,
			payment_status = $3,
			updated_at = $4
		WHERE id = $1
	`, creditID, amountCents, newStatus, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetCreditByID(ctx, creditID)
}

func (s *Store) ListCreditsByClient(ctx context.Context, clientID string) ([]domain.CreditObligation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		WHERE client_id = $1
		ORDER BY created_at DESC, id ASC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.CreditObligation, 0, 8)
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, *credit)
	}
	return credits, rows.Err()
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" || client.Name == "" || client.Telephone == "" {
		return nil, store.ErrValidation
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, telephone, created_at)
		VALUES ($1,$2,$3,$4)
	`, client.ID, client.Name, client.Telephone, client.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: telephone already registered", store.ErrValidation)
		}
		return nil, err
	}

	created := client
	return &created, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, telephone, created_at FROM clients ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 32)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Telephone, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (s *Store) GetClientByID(ctx context.Context, id string) (*domain.Client, error) {
	var c domain.Client
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, telephone, created_at FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Telephone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) AddCartLine(ctx context.Context, clientID string, date string, line domain.CartLine) (*domain.CartLine, error) {
	if clientID == "" || date == "" || line.ID == "" || line.ProductID == "" || line.Qty < 1 {
		return nil, store.ErrValidation
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_lines (id, client_id, cart_date, product_id, qty)
		VALUES ($1,$2,$3,$4,$5)
	`, line.ID, clientID, date, line.ProductID, line.Qty)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	added := line
	return &added, nil
}

func (s *Store) RemoveCartLine(ctx context.Context, clientID string, date string, lineID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE id = $1 AND client_id = $2 AND cart_date = $3
	`, lineID, clientID, date)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE client_id = $1`, clientID)
	return err
}

func (s *Store) GetCart(ctx context.Context, clientID string) (map[string][]domain.CartLine, error) {
	if _, err := s.GetClientByID(ctx, clientID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cart_date, product_id, qty
		FROM cart_lines
		WHERE client_id = $1
		ORDER BY cart_date ASC, id ASC
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cart := make(map[string][]domain.CartLine)
	for rows.Next() {
		var (
			line domain.CartLine
			date string
		)
		if err := rows.Scan(&line.ID, &date, &line.ProductID, &line.Qty); err != nil {
			return nil, err
		}
		cart[date] = append(cart[date], line)
	}
	return cart, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT id, COALESCE(actor_username, ''), COALESCE(actor_role, ''), action,
			entity_type, entity_id, COALESCE(detail, ''), created_at
		FROM audit_logs
	`
	args := make([]any, 0, 2)
	if date != "" {
		query += ` WHERE to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') = $1`
		args = append(args, date)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id ASC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrValidation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username already exists", store.ErrValidation)
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.PriceCents, &p.Quantity, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func scanSaleEntry(row rowScanner) (*domain.SaleEntry, error) {
	var (
		entry    domain.SaleEntry
		payments []byte
	)
	err := row.Scan(&entry.ID, &entry.ProductID, &entry.Date, &entry.InitialQty, &entry.SoldQty,
		&entry.RemainingQty, &entry.PriceAtSaleCents, &payments, &entry.AmountPaidCents,
		&entry.CreditCents, &entry.PaymentStatus, &entry.Status, &entry.ClientID,
		&entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payments, &entry.Payments); err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()
	return &entry, nil
}

func scanCredit(row rowScanner) (*domain.CreditObligation, error) {
	var c domain.CreditObligation
	err := row.Scan(&c.ID, &c.ProductID, &c.ClientID, &c.Qty, &c.PricePerUnitCents, &c.AmountPaidCents,
		&c.RemainingCents, &c.CreditDate, &c.Status, &c.PaymentStatus, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
