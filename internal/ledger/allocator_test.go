package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

func TestAllocateFullPayment(t *testing.T) {
	alloc, err := Allocate(500, map[string]int64{domain.TenderCash: 300, domain.TenderMomo: 200})
	require.NoError(t, err)

	assert.Equal(t, int64(500), alloc.PaidCents)
	assert.Equal(t, int64(0), alloc.CreditCents)
	assert.Equal(t, domain.PaymentStatusPaid, alloc.PaymentStatus)
}

func TestAllocatePartialPayment(t *testing.T) {
	alloc, err := Allocate(1000, map[string]int64{domain.TenderCash: 400})
	require.NoError(t, err)

	assert.Equal(t, int64(400), alloc.PaidCents)
	assert.Equal(t, int64(600), alloc.CreditCents)
	assert.Equal(t, domain.PaymentStatusPartial, alloc.PaymentStatus)
	assert.Equal(t, int64(600), alloc.Payments[domain.TenderCredit])
}

func TestAllocateNoPaymentIsPending(t *testing.T) {
	alloc, err := Allocate(750, map[string]int64{domain.TenderCash: 0})
	require.NoError(t, err)

	assert.Equal(t, int64(0), alloc.PaidCents)
	assert.Equal(t, int64(750), alloc.CreditCents)
	assert.Equal(t, domain.PaymentStatusPending, alloc.PaymentStatus)
}

func TestAllocateIdentityHolds(t *testing.T) {
	cases := []struct {
		total    int64
		payments map[string]int64
	}{
		{total: 100, payments: map[string]int64{domain.TenderCash: 100}},
		{total: 100, payments: map[string]int64{domain.TenderMomo: 40}},
		{total: 2500, payments: map[string]int64{domain.TenderCash: 1000, domain.TenderMomo: 500}},
		{total: 0, payments: map[string]int64{domain.TenderCash: 0}},
	}

	for _, tc := range cases {
		alloc, err := Allocate(tc.total, tc.payments)
		require.NoError(t, err)
		assert.Equal(t, tc.total, alloc.PaidCents+alloc.CreditCents)
	}
}

func TestAllocateRejectsOverpayment(t *testing.T) {
	_, err := Allocate(500, map[string]int64{domain.TenderCash: 600})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = Allocate(500, map[string]int64{domain.TenderCash: 300, domain.TenderMomo: 300})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestAllocateRejectsUnknownTender(t *testing.T) {
	_, err := Allocate(500, map[string]int64{"cheque": 500})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestAllocateRejectsNegativeAmount(t *testing.T) {
	_, err := Allocate(500, map[string]int64{domain.TenderCash: -10})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestAllocateRejectsEmptyBreakdown(t *testing.T) {
	_, err := Allocate(500, map[string]int64{})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestAllocateDeclaredCreditMustMatchRemainder(t *testing.T) {
	alloc, err := Allocate(1000, map[string]int64{domain.TenderCash: 400, domain.TenderCredit: 600})
	require.NoError(t, err)
	assert.Equal(t, int64(600), alloc.CreditCents)

	_, err = Allocate(1000, map[string]int64{domain.TenderCash: 400, domain.TenderCredit: 500})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestPoolDrawSpendsCashBeforeMomo(t *testing.T) {
	pool, err := NewPool(map[string]int64{domain.TenderCash: 100, domain.TenderMomo: 100})
	require.NoError(t, err)

	alloc, rest := pool.Draw(150)
	assert.Equal(t, int64(100), alloc.Payments[domain.TenderCash])
	assert.Equal(t, int64(50), alloc.Payments[domain.TenderMomo])
	assert.Equal(t, domain.PaymentStatusPaid, alloc.PaymentStatus)
	assert.Equal(t, int64(0), rest.CashCents)
	assert.Equal(t, int64(50), rest.MomoCents)
}

func TestPoolDrawSequence(t *testing.T) {
	// Three lines of 100 funded by 200 cash: the first two settle in full,
	// the third is entirely credit.
	pool, err := NewPool(map[string]int64{domain.TenderCash: 200})
	require.NoError(t, err)

	first, pool := pool.Draw(100)
	assert.Equal(t, domain.PaymentStatusPaid, first.PaymentStatus)
	assert.Equal(t, int64(0), first.CreditCents)

	second, pool := pool.Draw(100)
	assert.Equal(t, domain.PaymentStatusPaid, second.PaymentStatus)
	assert.Equal(t, int64(0), second.CreditCents)

	third, pool := pool.Draw(100)
	assert.Equal(t, domain.PaymentStatusPending, third.PaymentStatus)
	assert.Equal(t, int64(100), third.CreditCents)
	assert.Equal(t, int64(0), pool.CashCents)
}

func TestPoolDrawIsValueSemantics(t *testing.T) {
	pool, err := NewPool(map[string]int64{domain.TenderCash: 100})
	require.NoError(t, err)

	// Drawing from the same pool value twice yields identical allocations:
	// the receiver is never mutated.
	a1, _ := pool.Draw(60)
	a2, _ := pool.Draw(60)
	assert.Equal(t, a1, a2)
	assert.Equal(t, int64(100), pool.CashCents)
}

func TestNewPoolRejectsCreditFunding(t *testing.T) {
	_, err := NewPool(map[string]int64{domain.TenderCredit: 100})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestNewPoolRejectsUnknownTender(t *testing.T) {
	_, err := NewPool(map[string]int64{"voucher": 100})
	assert.ErrorIs(t, err, store.ErrValidation)
}
