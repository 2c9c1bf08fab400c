package pdf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// fieldPatterns holds, per header field, an ordered list of regular
// expressions: the primary pattern plus fallbacks that accept looser
// punctuation around the colon. The first pattern with a non-empty capture
// wins.
var fieldPatterns = map[string][]*regexp.Regexp{
	"order_number": {
		regexp.MustCompile(`(?i)Or[cç]amento\s*N[ºo°]?\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)Pedido\s*N[ºo°]?\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)N[ºo°]\s*(\d+)`),
	},
	"client": {
		regexp.MustCompile(`(?i)Cliente\s*:\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Cliente\s+([^\n]+)`),
	},
	"seller": {
		regexp.MustCompile(`(?i)Vendedor\s*:\s*([^\n]+)`),
		regexp.MustCompile(`(?i)Vendedor\s+([^\n]+)`),
	},
	"date": {
		regexp.MustCompile(`(?i)Data\s*:\s*(\d{2}/\d{2}/\d{2,4})`),
		regexp.MustCompile(`(\d{2}/\d{2}/\d{2,4})`),
	},
	"total_value": {
		regexp.MustCompile(`(?i)VALOR\s+A\s+PAGAR\s*R?\$?\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)VALOR\s+TOTAL\s*R?\$?\s*([\d.,]+)`),
		regexp.MustCompile(`(?i)TOTAL\s*R?\$?\s*([\d.,]+)`),
	},
}

// rightBoundaryCuts trims a captured field at a known right-boundary
// phrase, since the loose patterns above can overrun into the next label.
var rightBoundaryCuts = []string{"Forma", "Validade", "Vendedor", "Data"}

var fieldPrefixes = []string{"Cliente:", "CLIENTE:", "Vendedor:", "VENDEDOR:"}

// ExtractedFields are the header fields pulled by the ranked regex lists,
// before currency/date parsing.
type ExtractedFields struct {
	OrderNumber string
	ClientName  string
	SellerName  string
	OrderDate   string
	TotalValue  string
}

// ExtractFields applies the ranked pattern lists against the sieve's
// retained header block (joined back into a single string so multi-line
// patterns still match).
func ExtractFields(headerLines []string) ExtractedFields {
	joined := strings.Join(headerLines, "\n")
	return ExtractedFields{
		OrderNumber: firstMatch(joined, "order_number"),
		ClientName:  cleanField(firstMatch(joined, "client")),
		SellerName:  cleanField(firstMatch(joined, "seller")),
		OrderDate:   firstMatch(joined, "date"),
		TotalValue:  firstMatch(joined, "total_value"),
	}
}

func firstMatch(text, field string) string {
	for _, pattern := range fieldPatterns[field] {
		if m := pattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// cleanField strips leading label prefixes that may recur inside the
// capture, cuts at known right-boundary phrases, and collapses embedded
// newlines to spaces.
func cleanField(value string) string {
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.TrimSpace(value)

	for _, prefix := range fieldPrefixes {
		if strings.HasPrefix(value, prefix) {
			value = strings.TrimSpace(value[len(prefix):])
		}
	}

	for _, cut := range rightBoundaryCuts {
		if idx := strings.Index(value, cut); idx > 0 {
			value = strings.TrimSpace(value[:idx])
		}
	}

	return value
}

// ParseBRLCurrency parses the Brazilian currency convention: comma is the
// decimal separator, dots are thousands separators, and an "R$" prefix
// with surrounding spaces is tolerated.
func ParseBRLCurrency(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "R$", "")
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("empty currency value")
	}

	if strings.Contains(value, ",") {
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	} else if strings.Contains(value, ".") {
		parts := strings.Split(value, ".")
		if len(parts[len(parts)-1]) > 2 {
			value = strings.ReplaceAll(value, ".", "")
		}
	}

	return decimal.NewFromString(value)
}

// ParseBRLDate accepts DD/MM/YY (and DD/MM/YYYY), promoting two-digit years
// under 100 by adding 2000.
func ParseBRLDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}

	parts := strings.Split(value, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed date: %s", value)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed day in date %s: %w", value, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed month in date %s: %w", value, err)
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed year in date %s: %w", value, err)
	}
	if year < 100 {
		year += 2000
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
