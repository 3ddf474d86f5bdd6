// Package finance computes invoice tax totals from line items.
package finance

import (
	"github.com/shopspring/decimal"

	money "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/model"
)

// VATBucket accumulates the tax amount of every line sharing one VAT rate
type VATBucket struct {
	Rate   decimal.Decimal
	Basis  decimal.Decimal
	Amount decimal.Decimal
}

// Totals are the derived invoice totals. Nothing in here is rounded.
type Totals struct {
	TaxBasis   decimal.Decimal
	VATBuckets []VATBucket // first-seen rate order
	TotalVAT   decimal.Decimal
	GrandTotal decimal.Decimal
}

// Bucket returns the bucket for rate, compared by value
func (t Totals) Bucket(rate decimal.Decimal) (VATBucket, bool) {
	for _, b := range t.VATBuckets {
		if b.Rate.Equal(rate) {
			return b, true
		}
	}
	return VATBucket{}, false
}

// Aggregate sums line totals into a tax basis and VAT buckets.
// An empty slice yields all-zero totals.
func Aggregate(items []model.LineItem) Totals {
	totals := Totals{
		TaxBasis: money.Zero,
		TotalVAT: money.Zero,
	}

	for _, item := range items {
		lineTotal := item.Total()
		vat := money.Percentage(lineTotal, item.VATRate)
		totals.TaxBasis = totals.TaxBasis.Add(lineTotal)

		idx := -1
		for i := range totals.VATBuckets {
			if totals.VATBuckets[i].Rate.Equal(item.VATRate) {
				idx = i
				break
			}
		}
		if idx < 0 {
			totals.VATBuckets = append(totals.VATBuckets, VATBucket{
				Rate:   item.VATRate,
				Basis:  money.Zero,
				Amount: money.Zero,
			})
			idx = len(totals.VATBuckets) - 1
		}
		totals.VATBuckets[idx].Basis = totals.VATBuckets[idx].Basis.Add(lineTotal)
		totals.VATBuckets[idx].Amount = totals.VATBuckets[idx].Amount.Add(vat)
	}

	amounts := make([]decimal.Decimal, len(totals.VATBuckets))
	for i, b := range totals.VATBuckets {
		amounts[i] = b.Amount
	}
	totals.TotalVAT = money.Sum(amounts)
	totals.GrandTotal = totals.TaxBasis.Add(totals.TotalVAT)
	return totals
}
