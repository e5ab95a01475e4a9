// Package ledger implements payment allocation for sales: splitting a sale
// total across the accepted tenders and funding batches of sales from one
// shared payment pool.
package ledger

import (
	"fmt"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

// Allocation is the settled split of one sale total. The identity
// PaidCents + CreditCents == total always holds for a successful allocation.
type Allocation struct {
	Payments      map[string]int64 `json:"payments"`
	PaidCents     int64            `json:"paid_cents"`
	CreditCents   int64            `json:"credit_cents"`
	PaymentStatus string           `json:"payment_status"`
}

// Allocate splits totalCents across the provided tender amounts. Cash and
// momo count toward the paid amount; any remainder becomes credit. An
// explicit credit entry is allowed only when it matches the computed
// remainder. Overpayment is rejected, not refunded.
func Allocate(totalCents int64, payments map[string]int64) (Allocation, error) {
	if totalCents < 0 {
		return Allocation{}, fmt.Errorf("%w: negative total", store.ErrValidation)
	}
	if len(payments) == 0 {
		return Allocation{}, fmt.Errorf("%w: payment breakdown required", store.ErrValidation)
	}

	var paid int64
	declaredCredit := int64(-1)
	for tender, amount := range payments {
		if amount < 0 {
			return Allocation{}, fmt.Errorf("%w: negative amount for tender %q", store.ErrValidation, tender)
		}
		switch tender {
		case domain.TenderCash, domain.TenderMomo:
			paid += amount
		case domain.TenderCredit:
			declaredCredit = amount
		default:
			return Allocation{}, fmt.Errorf("%w: unknown tender %q", store.ErrValidation, tender)
		}
	}

	if paid > totalCents {
		return Allocation{}, fmt.Errorf("%w: amount paid %d exceeds total %d", store.ErrValidation, paid, totalCents)
	}

	credit := totalCents - paid
	if declaredCredit >= 0 && declaredCredit != credit {
		return Allocation{}, fmt.Errorf("%w: declared credit %d does not match remainder %d", store.ErrValidation, declaredCredit, credit)
	}

	normalized := make(map[string]int64, 3)
	for tender, amount := range payments {
		if tender == domain.TenderCredit || amount == 0 {
			continue
		}
		normalized[tender] = amount
	}
	if credit > 0 {
		normalized[domain.TenderCredit] = credit
	}

	return Allocation{
		Payments:      normalized,
		PaidCents:     paid,
		CreditCents:   credit,
		PaymentStatus: statusFor(paid, credit),
	}, nil
}

// Pool is the shared funds for a batch of sales. Pools are values: Draw
// returns the remainder as a new Pool rather than mutating the receiver, so
// a failed line can simply keep using the previous pool.
type Pool struct {
	CashCents int64
	MomoCents int64
}

// NewPool validates a shared breakdown and loads it into a Pool. Credit is
// not a funding source and is rejected here; shortfalls become credit per
// drawn line instead.
func NewPool(payments map[string]int64) (Pool, error) {
	if len(payments) == 0 {
		return Pool{}, fmt.Errorf("%w: payment breakdown required", store.ErrValidation)
	}

	var pool Pool
	for tender, amount := range payments {
		if amount < 0 {
			return Pool{}, fmt.Errorf("%w: negative amount for tender %q", store.ErrValidation, tender)
		}
		switch tender {
		case domain.TenderCash:
			pool.CashCents = amount
		case domain.TenderMomo:
			pool.MomoCents = amount
		case domain.TenderCredit:
			return Pool{}, fmt.Errorf("%w: credit cannot fund a payment pool", store.ErrValidation)
		default:
			return Pool{}, fmt.Errorf("%w: unknown tender %q", store.ErrValidation, tender)
		}
	}
	return pool, nil
}

// Draw settles one sale total against the pool. Cash is exhausted before
// momo, and whatever the pool cannot cover becomes the line's credit.
func (p Pool) Draw(totalCents int64) (Allocation, Pool) {
	cash := min64(p.CashCents, totalCents)
	momo := min64(p.MomoCents, totalCents-cash)
	credit := totalCents - cash - momo

	payments := make(map[string]int64, 3)
	if cash > 0 {
		payments[domain.TenderCash] = cash
	}
	if momo > 0 {
		payments[domain.TenderMomo] = momo
	}
	if credit > 0 {
		payments[domain.TenderCredit] = credit
	}

	alloc := Allocation{
		Payments:      payments,
		PaidCents:     cash + momo,
		CreditCents:   credit,
		PaymentStatus: statusFor(cash+momo, credit),
	}
	return alloc, Pool{CashCents: p.CashCents - cash, MomoCents: p.MomoCents - momo}
}

func statusFor(paid int64, credit int64) string {
	switch {
	case credit == 0:
		return domain.PaymentStatusPaid
	case paid > 0:
		return domain.PaymentStatusPartial
	default:
		return domain.PaymentStatusPending
	}
}

func min64(a int64, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
