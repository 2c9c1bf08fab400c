package pdf

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pickflow/separation/internal/apperr"
)

// ParsedOrder is the structured result of a successful extraction: header
// fields, items, and the (possibly non-matching) arithmetic validation
// record the seller reviews before confirming.
type ParsedOrder struct {
	OrderNumber string
	ClientName  string
	SellerName  string
	OrderDate   time.Time
	TotalValue  decimal.Decimal
	Items       []RawItem
	Validation  ValidationInfo
}

// Parse runs the full pipeline (A -> B -> C -> {D, E} -> F) against a raw
// PDF byte stream and returns a validated structured order, or a tagged
// error from the taxonomy.
func Parse(data []byte) (*ParsedOrder, error) {
	rawText, err := ExtractText(data)
	if err != nil {
		return nil, err
	}

	normalized := Normalize(rawText)
	sieved := Sieve(normalized)

	fields := ExtractFields(sieved.HeaderLines)
	if fields.OrderNumber == "" {
		return nil, apperr.New(apperr.CodePatternMiss, "could not locate an order number in the document")
	}

	items := ExtractItems(sieved.ItemLines)
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeExtractionEmpty, "no well-formed item lines were found in the document")
	}

	if err := requireField("client_name", fields.ClientName); err != nil {
		return nil, err
	}
	if err := requireField("seller_name", fields.SellerName); err != nil {
		return nil, err
	}

	orderDate, err := ParseBRLDate(fields.OrderDate)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePatternMiss, "could not parse the order date", err)
	}

	totalValue, err := ParseBRLCurrency(fields.TotalValue)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePatternMiss, "could not parse the document total", err)
	}
	if totalValue.LessThanOrEqual(decimal.Zero) {
		return nil, apperr.New(apperr.CodePatternMiss, "document total must be positive")
	}

	if err := ValidateItemArithmetic(items); err != nil {
		return nil, err
	}

	validation := ValidateOrderTotal(items, totalValue)

	return &ParsedOrder{
		OrderNumber: fields.OrderNumber,
		ClientName:  fields.ClientName,
		SellerName:  fields.SellerName,
		OrderDate:   orderDate,
		TotalValue:  totalValue,
		Items:       items,
		Validation:  validation,
	}, nil
}

func requireField(name, value string) error {
	if value == "" {
		return apperr.New(apperr.CodePatternMiss, "missing required field: "+name)
	}
	return nil
}
