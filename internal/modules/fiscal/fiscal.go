// Package fiscal maps close dates to federal fiscal years and splits deal amounts
// across the FY25, FY26 and FY27 projection buckets.
package fiscal

import (
	"fmt"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	firstYear = 2025
	lastYear  = 2027

	// amounts are projected to cents
	places = 2
)

// Buckets lists the projection buckets in order
var Buckets = []domain.FYBucket{domain.FY25, domain.FY26, domain.FY27}

// FiscalYear returns the federal fiscal year containing t (Oct 1 of N-1 through Sep 30 of N)
func FiscalYear(t time.Time) int {
	t = t.UTC()
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}

// BucketForYear clamps a fiscal year to the nearest projection bucket
func BucketForYear(fy int) domain.FYBucket {
	switch {
	case fy <= firstYear:
		return domain.FY25
	case fy >= lastYear:
		return domain.FY27
	default:
		return domain.FY26
	}
}

// BucketFor returns the projection bucket for a date
func BucketFor(t time.Time) domain.FYBucket {
	return BucketForYear(FiscalYear(t))
}

// Percentages is one row of the allocation matrix
type Percentages struct {
	FY25 decimal.Decimal
	FY26 decimal.Decimal
	FY27 decimal.Decimal
}

func row(fy25, fy26, fy27 int64) Percentages {
	return Percentages{
		FY25: decimal.New(fy25, -2),
		FY26: decimal.New(fy26, -2),
		FY27: decimal.New(fy27, -2),
	}
}

var matrix = map[domain.FYBucket]Percentages{
	domain.FY25: row(80, 15, 5),
	domain.FY26: row(10, 75, 15),
	domain.FY27: row(5, 20, 75),
}

// Row returns the allocation percentages for a close-date bucket
func Row(bucket domain.FYBucket) (Percentages, error) {
	p, ok := matrix[bucket]
	if !ok {
		return Percentages{}, fmt.Errorf("no allocation row for bucket %q", bucket)
	}
	return p, nil
}

// Share returns the row's percentage for one bucket
func (p Percentages) Share(b domain.FYBucket) decimal.Decimal {
	switch b {
	case domain.FY25:
		return p.FY25
	case domain.FY26:
		return p.FY26
	case domain.FY27:
		return p.FY27
	default:
		return decimal.Zero
	}
}

// Dominant returns the bucket holding the row's largest share; ties go to the earlier bucket
func (p Percentages) Dominant() domain.FYBucket {
	dominant, best := Buckets[0], p.Share(Buckets[0])
	for _, b := range Buckets[1:] {
		if share := p.Share(b); share.GreaterThan(best) {
			dominant, best = b, share
		}
	}
	return dominant
}

// Distribute splits amount across the three buckets using the row for bucket.
// The amount is first rounded half away from zero to cents. Non-dominant cells are
// rounded the same way and the dominant cell takes the remainder, so every cell has
// at most two decimals and the projections sum exactly to the rounded amount.
func Distribute(amount decimal.Decimal, bucket domain.FYBucket) (domain.FYProjection, error) {
	if amount.IsNegative() {
		return domain.FYProjection{}, fmt.Errorf("amount must not be negative: %s", amount)
	}
	amount = amount.Round(places)
	p, err := Row(bucket)
	if err != nil {
		return domain.FYProjection{}, err
	}

	proj := domain.FYProjection{
		FY25: amount.Mul(p.FY25).Round(places),
		FY26: amount.Mul(p.FY26).Round(places),
		FY27: amount.Mul(p.FY27).Round(places),
	}

	switch p.Dominant() {
	case domain.FY25:
		proj.FY25 = amount.Sub(proj.FY26).Sub(proj.FY27)
	case domain.FY26:
		proj.FY26 = amount.Sub(proj.FY25).Sub(proj.FY27)
	case domain.FY27:
		proj.FY27 = amount.Sub(proj.FY25).Sub(proj.FY26)
	}

	return proj, nil
}

// Triage routes the whole amount, rounded to cents, to one bucket. Used when the close date is missing.
func Triage(amount decimal.Decimal, bucket domain.FYBucket) (domain.FYProjection, error) {
	if amount.IsNegative() {
		return domain.FYProjection{}, fmt.Errorf("amount must not be negative: %s", amount)
	}
	amount = amount.Round(places)
	proj := domain.FYProjection{FY25: decimal.Zero, FY26: decimal.Zero, FY27: decimal.Zero}
	switch bucket {
	case domain.FY25:
		proj.FY25 = amount
	case domain.FY26:
		proj.FY26 = amount
	case domain.FY27:
		proj.FY27 = amount
	default:
		return domain.FYProjection{}, fmt.Errorf("cannot triage into bucket %q", bucket)
	}
	return proj, nil
}
