package pdf

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// itemPatterns is the ranked list of item shapes, most specific first:
//   - canonical: CODE / REFERENCE --> DESCRIPTION / UN / QTY / UNIT_PRICE / TOTAL
//   - a variant with an extra filler field between description and UN
//   - a variant without the "--> DESCRIPTION" segment (reference is the name)
//   - a legacy 3-5 digit code shape kept for backward compatibility
var itemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(\d{4,5})\s*/\s*([^/\n]+?)\s*-->\s*([^/\n]+?)\s*/\s*UN\s*/\s*(\d+)\s*/\s*([\d.,]+)\s*/\s*([\d.,]+)`),
	regexp.MustCompile(`(?i)^\s*(\d{4,5})\s*/\s*([^/\n]+?)\s*-->\s*([^/\n]+?)\s*/\s*([^/\n]+?)\s*/\s*UN\s*/\s*(\d+)\s*/\s*([\d.,]+)\s*/\s*([\d.,]+)`),
	regexp.MustCompile(`(?i)^\s*(\d{4,5})\s*/\s*([^/\n]+?)\s*/\s*UN\s*/\s*(\d+)\s*/\s*([\d.,]+)\s*/\s*([\d.,]+)`),
	regexp.MustCompile(`(?i)^\s*(\d{3,5})\s*/\s*([^/\n]+?)\s*/\s*UN\s*/\s*(\d+)\s*/\s*([\d.,]+)\s*/\s*([\d.,]+)`),
}

// itemShape describes which capture-group index each pattern uses for its
// description and filler segments, since the four ranked shapes differ in
// which optional groups they carry.
type itemShape struct {
	hasDescription bool
	hasFiller      bool
}

var itemPatternShapes = []itemShape{
	{hasDescription: true, hasFiller: false},
	{hasDescription: true, hasFiller: true},
	{hasDescription: false, hasFiller: false},
	{hasDescription: false, hasFiller: false},
}

// codeBlocklist rejects codes known to be false positives (e.g. shipping
// line items that coincidentally match the numeric shape).
var codeBlocklist = map[string]bool{
	"00000": true,
}

var catalogueArtifactWords = []string{"CNPJ", "Validade", "Forma de Pagto", "Página"}

// RawItem is one item line parsed into its typed fields, before
// arithmetic validation.
type RawItem struct {
	ProductCode      string
	ProductReference string
	ProductName      string
	Quantity         int
	UnitPrice        decimal.Decimal
	TotalPrice       decimal.Decimal
}

// ExtractItems applies the ranked item patterns against each candidate
// line, keeping the first pattern that yields a well-formed tuple, and
// de-duplicates by product_code preserving first-occurrence order.
func ExtractItems(lines []string) []RawItem {
	var items []RawItem
	seen := make(map[string]bool)

	for _, line := range lines {
		item, ok := parseItemLine(line)
		if !ok {
			continue
		}
		if seen[item.ProductCode] {
			continue
		}
		seen[item.ProductCode] = true
		items = append(items, item)
	}

	return items
}

func parseItemLine(line string) (RawItem, bool) {
	for i, pattern := range itemPatterns {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		shape := itemPatternShapes[i]
		var code, reference, description, filler, qtyStr, unitStr, totalStr string
		switch {
		case shape.hasDescription && shape.hasFiller:
			code, reference, description, filler, qtyStr, unitStr, totalStr = m[1], m[2], m[3], m[4], m[5], m[6], m[7]
		case shape.hasDescription:
			code, reference, description, qtyStr, unitStr, totalStr = m[1], m[2], m[3], m[4], m[5], m[6]
		default:
			code, reference, qtyStr, unitStr, totalStr = m[1], m[2], m[3], m[4], m[5]
		}

		reference = strings.TrimSpace(reference)
		description = strings.TrimSpace(description)
		filler = strings.TrimSpace(filler)

		if isSuspiciousMatch(code, reference) {
			continue
		}

		quantity, unitPrice, totalPrice, valid := parseItemNumbers(qtyStr, unitStr, totalStr)
		if !valid {
			continue
		}

		name := description
		if name == "" {
			name = reference
		}
		if filler != "" {
			name = name + " (" + filler + ")"
		}

		if !isValidItemData(code, reference, quantity, unitPrice, totalPrice) {
			continue
		}

		return RawItem{
			ProductCode:      code,
			ProductReference: reference,
			ProductName:      name,
			Quantity:         quantity,
			UnitPrice:        unitPrice,
			TotalPrice:       totalPrice,
		}, true
	}

	return RawItem{}, false
}

// isSuspiciousMatch rejects codes shorter than 3 digits or blocklisted,
// and references that smell like artifact catalogue text or carry an
// embedded newline.
func isSuspiciousMatch(code, reference string) bool {
	if len(code) < 3 {
		return true
	}
	if codeBlocklist[code] {
		return true
	}
	if strings.Contains(reference, "\n") {
		return true
	}
	for _, word := range catalogueArtifactWords {
		if strings.Contains(reference, word) {
			return true
		}
	}
	return false
}

// isValidItemData enforces the final shape: 3-5 digit code, reference of
// at least two characters, positive integer quantity, positive prices.
func isValidItemData(code, reference string, quantity int, unitPrice, totalPrice decimal.Decimal) bool {
	if len(code) < 3 || len(code) > 5 {
		return false
	}
	if len(reference) < 2 {
		return false
	}
	if quantity <= 0 {
		return false
	}
	if unitPrice.LessThanOrEqual(decimal.Zero) || totalPrice.LessThanOrEqual(decimal.Zero) {
		return false
	}
	return true
}

func parseItemNumbers(qtyStr, unitStr, totalStr string) (int, decimal.Decimal, decimal.Decimal, bool) {
	quantity, err := strconv.Atoi(strings.TrimSpace(qtyStr))
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, false
	}
	unitPrice, err := ParseBRLCurrency(unitStr)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, false
	}
	totalPrice, err := ParseBRLCurrency(totalStr)
	if err != nil {
		return 0, decimal.Zero, decimal.Zero, false
	}
	return quantity, unitPrice, totalPrice, true
}
