package domain

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Brand      string    `json:"brand,omitempty"`
	PriceCents int64     `json:"price_cents"`
	Quantity   int       `json:"quantity"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	Brand      string `json:"brand,omitempty"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Category   *string `json:"category,omitempty"`
	Brand      *string `json:"brand,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type RestockRequest struct {
	Qty int `json:"qty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// SaleEntry is one line of the day-bucketed sales ledger. Entries are
// append-only: after creation only Status and UpdatedAt may change.
type SaleEntry struct {
	ID               string           `json:"id"`
	ProductID        string           `json:"product_id"`
	Date             string           `json:"date"`
	InitialQty       int              `json:"initial_qty"`
	SoldQty          int              `json:"sold_qty"`
	RemainingQty     int              `json:"remaining_qty"`
	PriceAtSaleCents int64            `json:"price_at_sale_cents"`
	Payments         map[string]int64 `json:"payments"`
	AmountPaidCents  int64            `json:"amount_paid_cents"`
	CreditCents      int64            `json:"credit_cents"`
	PaymentStatus    string           `json:"payment_status"`
	Status           string           `json:"status"`
	ClientID         string           `json:"client_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type SaleRequest struct {
	ProductID string           `json:"product_id"`
	Date      string           `json:"date,omitempty"`
	Qty       int              `json:"qty"`
	ClientID  string           `json:"client_id,omitempty"`
	Payments  map[string]int64 `json:"payments"`
}

type SaleLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// BatchSaleRequest records several sale lines funded from one shared payment
// pool. Lines are settled in order: cash first, then momo, with any shortfall
// booked as credit.
type BatchSaleRequest struct {
	Date     string           `json:"date,omitempty"`
	ClientID string           `json:"client_id,omitempty"`
	Payments map[string]int64 `json:"payments"`
	Lines    []SaleLine       `json:"lines"`
}

type BatchLineError struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
}

type BatchSaleResponse struct {
	Entries []SaleEntry      `json:"entries"`
	Errors  []BatchLineError `json:"errors,omitempty"`
}

type CancellationRequest struct {
	ProductID string `json:"product_id"`
	Date      string `json:"date"`
	EntryID   string `json:"entry_id"`
}

type ApprovalRequest struct {
	ProductID  string `json:"product_id"`
	EntryID    string `json:"entry_id"`
	Action     string `json:"action"`
	ManagerPIN string `json:"manager_pin"`
}

type PendingCancellation struct {
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Entry       SaleEntry `json:"entry"`
}

// CreditObligation tracks the unpaid remainder of a sale sold on credit.
type CreditObligation struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	ClientID          string    `json:"client_id"`
	Qty               int       `json:"qty"`
	PricePerUnitCents int64     `json:"price_per_unit_cents"`
	AmountPaidCents   int64     `json:"amount_paid_cents"`
	RemainingCents    int64     `json:"remaining_cents"`
	CreditDate        string    `json:"credit_date"`
	Status            string    `json:"status"`
	PaymentStatus     string    `json:"payment_status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type CreditPaymentRequest struct {
	CreditID    string `json:"credit_id"`
	AmountCents int64  `json:"amount_cents"`
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Telephone string    `json:"telephone"`
	CreatedAt time.Time `json:"created_at"`
}

type ClientCreateRequest struct {
	Name      string `json:"name"`
	Telephone string `json:"telephone"`
}

type ClientWithCredits struct {
	Client  Client             `json:"client"`
	Credits []CreditObligation `json:"credits"`
}

type CartLine struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CartAddRequest struct {
	ClientID  string `json:"client_id"`
	Date      string `json:"date,omitempty"`
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CartRemoveRequest struct {
	ClientID string `json:"client_id"`
	Date     string `json:"date"`
	LineID   string `json:"line_id"`
}

type CartClearRequest struct {
	ClientID string `json:"client_id"`
}

type TenderTotal struct {
	Tender      string `json:"tender"`
	AmountCents int64  `json:"amount_cents"`
}

type DailySummary struct {
	Date             string        `json:"date"`
	Entries          int64         `json:"entries"`
	CancelledEntries int64         `json:"cancelled_entries"`
	GrossCents       int64         `json:"gross_cents"`
	PaidCents        int64         `json:"paid_cents"`
	CreditCents      int64         `json:"credit_cents"`
	ByTender         []TenderTotal `json:"by_tender"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type SellerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SellerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TenderCash   = "cash"
	TenderMomo   = "momo"
	TenderCredit = "credit"
)

const (
	PaymentStatusPaid    = "PAID"
	PaymentStatusPartial = "PARTIALLY_PAID"
	PaymentStatusPending = "PENDING"
)

const (
	EntryStatusComplete      = "complete"
	EntryStatusRequestCancel = "RequestCancel"
	EntryStatusCancelled     = "cancelled"
)

const CreditStatusLoaned = "LOANED"

const (
	ApprovalActionApprove = "approve"
	ApprovalActionReject  = "reject"
)

// DateLayout is the day-bucket key format for the sales ledger and carts.
const DateLayout = "2006-01-02"
