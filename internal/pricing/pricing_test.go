package pricing

import (
	"testing"

	"github.com/fieldserve/backend/internal/models"
)

func testEngine() Engine {
	return Engine{TaxRatePercent: 18, PlatformFeeCents: 49, CommissionPercent: 10}
}

func int64Ptr(n int64) *int64 { return &n }

// Quote(500, promo{10%, cap 40}) with 18% tax and fee 49 must always be 599.
func TestQuoteDeterminism(t *testing.T) {
	e := testEngine()
	promo := &models.Promotion{Percent: 10, MaxDiscountCents: int64Ptr(40)}

	for i := 0; i < 3; i++ {
		q := e.ComputeQuote(500, promo)
		if q.SubtotalCents != 500 {
			t.Errorf("subtotal: got %d, want 500", q.SubtotalCents)
		}
		if q.TaxCents != 90 {
			t.Errorf("tax: got %d, want 90", q.TaxCents)
		}
		if q.DiscountCents != 40 {
			t.Errorf("discount: got %d, want min(50, 40) = 40", q.DiscountCents)
		}
		if q.TotalCents != 599 {
			t.Errorf("total: got %d, want 500+90+49-40 = 599", q.TotalCents)
		}
	}
}

func TestQuoteWithoutPromo(t *testing.T) {
	q := testEngine().ComputeQuote(499, nil)
	if q.DiscountCents != 0 {
		t.Errorf("discount without promo: got %d, want 0", q.DiscountCents)
	}
	// 499 * 18% = 89.82 rounds to 90
	if q.TaxCents != 90 {
		t.Errorf("tax: got %d, want 90", q.TaxCents)
	}
	if q.TotalCents != 499+90+49 {
		t.Errorf("total: got %d, want %d", q.TotalCents, 499+90+49)
	}
}

func TestQuoteDiscountFloor(t *testing.T) {
	// 100% discount with no cap: total must not drop below the platform fee.
	promo := &models.Promotion{Percent: 100}
	q := testEngine().ComputeQuote(200, promo)
	if q.TotalCents != q.PlatformFeeCents {
		t.Errorf("floored total: got %d, want platform fee %d", q.TotalCents, q.PlatformFeeCents)
	}
	if q.TotalCents < 0 {
		t.Error("total must never be negative")
	}
}

func TestComputeSettlement(t *testing.T) {
	e := testEngine()
	job := &models.Job{BasePriceCents: 500, TotalCents: 639}
	s := e.ComputeSettlement(job)
	if s.WorkerPayoutCents != 450 {
		t.Errorf("worker payout: got %d, want 500 - 10%% = 450", s.WorkerPayoutCents)
	}
	if s.PlatformRetainedCents != 639-450 {
		t.Errorf("platform retained: got %d, want %d", s.PlatformRetainedCents, 639-450)
	}
	if s.WorkerPayoutCents+s.PlatformRetainedCents != job.TotalCents {
		t.Error("split must conserve the quoted total")
	}
}
