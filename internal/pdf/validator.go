package pdf

import (
	"github.com/shopspring/decimal"

	"github.com/pickflow/separation/internal/apperr"
)

// tolerance is the absolute currency tolerance both arithmetic checks
// apply, expressed as a decimal to avoid float drift. The per-item check
// accepts a difference up to and including it; the order-total check
// reports a match only when the difference is strictly below it.
var tolerance = decimal.NewFromFloat(0.01)

// ValidationInfo accompanies a successfully parsed order so the seller can
// confirm or abort discrepancies between the PDF's stated total and the
// sum of its item totals.
type ValidationInfo struct {
	CalculatedTotal decimal.Decimal `json:"calculated_total"`
	PDFTotal        decimal.Decimal `json:"pdf_total"`
	ItemsCount      int             `json:"items_count"`
	ModelsCount     int             `json:"models_count"`
	TotalsMatch     bool            `json:"totals_match"`
	Difference      decimal.Decimal `json:"difference"`
}

// ValidateItemArithmetic enforces, per item, total_price = quantity *
// unit_price within the shared tolerance. A violation is fatal to the
// whole extraction.
func ValidateItemArithmetic(items []RawItem) error {
	for _, item := range items {
		expected := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		diff := item.TotalPrice.Sub(expected).Abs()
		if diff.GreaterThan(tolerance) {
			return apperr.New(apperr.CodeItemArithmetic,
				"item "+item.ProductCode+" total does not match quantity times unit price")
		}
	}
	return nil
}

// ValidateOrderTotal compares the sum of item totals against the
// document's stated total. A mismatch is never fatal: it is surfaced as a
// validation_info record for the seller to confirm or abort.
func ValidateOrderTotal(items []RawItem, documentTotal decimal.Decimal) ValidationInfo {
	calculated := decimal.Zero
	for _, item := range items {
		calculated = calculated.Add(item.TotalPrice)
	}

	difference := calculated.Sub(documentTotal).Abs()

	return ValidationInfo{
		CalculatedTotal: calculated,
		PDFTotal:        documentTotal,
		ItemsCount:      len(items),
		ModelsCount:     len(items),
		TotalsMatch:     difference.LessThan(tolerance),
		Difference:      difference,
	}
}
