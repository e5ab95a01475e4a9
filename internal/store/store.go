package store

import (
	"context"
	"errors"
	"time"

	"tillbook/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrValidation        = errors.New("invalid request")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrAlreadySettled    = errors.New("credit already settled")
	ErrInvalidState      = errors.New("invalid entry state")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int, at time.Time) (*domain.Product, error)
	RecordSale(ctx context.Context, entry domain.SaleEntry) (*domain.SaleEntry, error)
	ListSalesByDate(ctx context.Context, date string) ([]domain.SaleEntry, error)
	GetSaleEntry(ctx context.Context, productID string, date string, entryID string) (*domain.SaleEntry, error)
	RequestCancellation(ctx context.Context, productID string, date string, entryID string, at time.Time) (*domain.SaleEntry, error)
	ResolveCancellation(ctx context.Context, productID string, entryID string, approve bool, at time.Time) (*domain.SaleEntry, error)
	ListPendingCancellations(ctx context.Context) ([]domain.PendingCancellation, error)
	CreateCredit(ctx context.Context, credit domain.CreditObligation) (*domain.CreditObligation, error)
	GetCreditByID(ctx context.Context, creditID string) (*domain.CreditObligation, error)
	ApplyCreditPayment(ctx context.Context, creditID string, amountCents int64, at time.Time) (*domain.CreditObligation, error)
	ListCreditsByClient(ctx context.Context, clientID string) ([]domain.CreditObligation, error)
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	ListClients(ctx context.Context) ([]domain.Client, error)
	GetClientByID(ctx context.Context, id string) (*domain.Client, error)
	AddCartLine(ctx context.Context, clientID string, date string, line domain.CartLine) (*domain.CartLine, error)
	RemoveCartLine(ctx context.Context, clientID string, date string, lineID string) error
	ClearCart(ctx context.Context, clientID string) error
	GetCart(ctx context.Context, clientID string) (map[string][]domain.CartLine, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
