// Package pricing computes quoted prices and settlement splits. Everything
// here is pure arithmetic; promotion consumption lives at the store boundary
// so a code cannot be double-applied by concurrent bookings.
package pricing

import (
	"errors"

	"github.com/fieldserve/backend/internal/models"
)

// ErrInvalidPromotion is returned for an unknown, expired, or exhausted code.
var ErrInvalidPromotion = errors.New("invalid promotion code")

// Engine holds the configured rates. All amounts are integer minor units.
type Engine struct {
	TaxRatePercent    int64
	PlatformFeeCents  int64
	CommissionPercent int64
}

// Quote is the price breakdown computed at booking.
type Quote struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	TaxCents         int64 `json:"tax_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	DiscountCents    int64 `json:"discount_cents"`
	TotalCents       int64 `json:"total_cents"`
}

// Settlement is the payout split computed after successful payment.
type Settlement struct {
	WorkerPayoutCents     int64 `json:"worker_payout_cents"`
	PlatformRetainedCents int64 `json:"platform_retained_cents"`
}

// roundPercent computes amount*percent/100 with half-up rounding.
func roundPercent(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}

// ComputeQuote prices a booking. promo may be nil. The discount is capped by
// the promotion's max discount and then floored so the total never drops
// below the platform fee.
func (e Engine) ComputeQuote(baseCents int64, promo *models.Promotion) Quote {
	q := Quote{
		SubtotalCents:    baseCents,
		TaxCents:         roundPercent(baseCents, e.TaxRatePercent),
		PlatformFeeCents: e.PlatformFeeCents,
	}
	if promo != nil {
		discount := roundPercent(baseCents, int64(promo.Percent))
		if promo.MaxDiscountCents != nil && discount > *promo.MaxDiscountCents {
			discount = *promo.MaxDiscountCents
		}
		// total = subtotal + tax + fee - discount must stay >= fee
		if max := q.SubtotalCents + q.TaxCents; discount > max {
			discount = max
		}
		q.DiscountCents = discount
	}
	q.TotalCents = q.SubtotalCents + q.TaxCents + q.PlatformFeeCents - q.DiscountCents
	return q
}

// ComputeSettlement splits a paid job: the worker receives the subtotal minus
// platform commission, the platform retains the rest of the quoted total.
func (e Engine) ComputeSettlement(job *models.Job) Settlement {
	commission := roundPercent(job.BasePriceCents, e.CommissionPercent)
	payout := job.BasePriceCents - commission
	if payout < 0 {
		payout = 0
	}
	return Settlement{
		WorkerPayoutCents:     payout,
		PlatformRetainedCents: job.TotalCents - payout,
	}
}
