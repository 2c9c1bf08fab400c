package pdf

import (
	"regexp"
	"strings"
)

// artifactCatalogue lists page-noise patterns the sieve must drop: company
// header, CNPJ/tax-ID lines, street address, payment-condition line, the
// repeating column header, day-count footers, page markers, and full-line
// restatements of header fields already captured by the field extractor.
var artifactCatalogue = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PMCELL`),
	regexp.MustCompile(`(?i)CNPJ`),
	regexp.MustCompile(`(?i)Insc\.?\s*Estadual`),
	regexp.MustCompile(`(?i)\bI\.?E\.?:`),
	regexp.MustCompile(`(?i)\b(Rua|Av\.|Avenida|CEP)\b`),
	regexp.MustCompile(`(?i)Forma\s*de\s*Pagto`),
	regexp.MustCompile(`(?i)Condi[cç][aã]o\s*de\s*Pagamento`),
	regexp.MustCompile(`(?i)C[oó]digo.*Refer[eê]ncia.*Descri[cç][aã]o`),
	regexp.MustCompile(`(?i)Validade\s*do\s*Or[cç]amento`),
	regexp.MustCompile(`(?i)P[aá]gina\s*\d+\s*(de|/)\s*\d+`),
	regexp.MustCompile(`^\s*Or[cç]amento\s*N[ºo°]?:?\s*\d+\s*$`),
	regexp.MustCompile(`(?i)^\s*Cliente:.*$`),
	regexp.MustCompile(`(?i)^\s*Vendedor:.*$`),
	regexp.MustCompile(`(?i)^\s*Data:\s*\d{2}/\d{2}/\d{2}\s*$`),
	regexp.MustCompile(`(?i)^\s*VALOR\s+TOTAL\s+R\$.*$`),
	regexp.MustCompile(`(?i)^\s*VALOR\s+A\s+PAGAR.*$`),
	regexp.MustCompile(`(?i)^\s*DESCONTO\s+R\$.*$`),
}

// headerWhitelist are the lines retained outside item accumulators for the
// field extractor (D) to parse. They overlap in shape with the last few
// artifactCatalogue entries on purpose: the sieve keeps a copy in the header
// block while still excluding the line from item-continuation scanning.
var headerWhitelist = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Or[cç]amento\s*N[ºo°]?:?\s*\d+`),
	regexp.MustCompile(`(?i)Cliente:`),
	regexp.MustCompile(`(?i)Vendedor:`),
	regexp.MustCompile(`(?i)Data:`),
	regexp.MustCompile(`(?i)VALOR\s+TOTAL\s+R\$`),
	regexp.MustCompile(`(?i)VALOR\s+A\s+PAGAR`),
	regexp.MustCompile(`(?i)DESCONTO\s+R\$`),
}

var itemOpenPattern = regexp.MustCompile(`^\s*\d{4,5}\s*/`)
var continuationUnPattern = regexp.MustCompile(`/\s*UN\s*/`)
var continuationTailPrice = regexp.MustCompile(`/\s*\d+\s*/\s*[\d.,]+\s*/\s*[\d.,]+`)
var numericFieldPattern = regexp.MustCompile(`[\d.,]+`)

// Sieved is the output of segmenting normalized text: the preserved header
// block and the finalized candidate item lines, in document order.
type Sieved struct {
	HeaderLines []string
	ItemLines   []string
}

// Sieve segments normalized text into header lines and candidate item
// lines, joining wrapped continuation lines into whole-item strings and
// dropping artifact noise.
func Sieve(text string) Sieved {
	var result Sieved
	var accumulator strings.Builder

	finalize := func() {
		if accumulator.Len() == 0 {
			return
		}
		candidate := strings.TrimSpace(accumulator.String())
		accumulator.Reset()
		if isValidItemLine(candidate) {
			result.ItemLines = append(result.ItemLines, candidate)
		}
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		if isArtifact(line) {
			finalize()
			if isHeaderLine(line) {
				result.HeaderLines = append(result.HeaderLines, line)
			}
			continue
		}

		switch {
		case itemOpenPattern.MatchString(line):
			finalize()
			accumulator.WriteString(line)
		case continuationUnPattern.MatchString(line) || continuationTailPrice.MatchString(line):
			if accumulator.Len() > 0 {
				accumulator.WriteString(" ")
			}
			accumulator.WriteString(line)
		default:
			if accumulator.Len() > 0 {
				accumulator.WriteString(" ")
				accumulator.WriteString(line)
			}
			// a wrap line with no open accumulator is noise; drop it
		}
	}
	finalize()

	return result
}

func isArtifact(line string) bool {
	for _, pattern := range artifactCatalogue {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

func isHeaderLine(line string) bool {
	for _, pattern := range headerWhitelist {
		if pattern.MatchString(line) {
			return true
		}
	}
	return false
}

// isValidItemLine enforces the shape a finalized accumulator must have to
// survive into candidate item lines: item-open shape, a UN marker, and at
// least three numeric fields (quantity, unit price, total price).
func isValidItemLine(line string) bool {
	if !itemOpenPattern.MatchString(line) {
		return false
	}
	if !strings.Contains(strings.ToUpper(line), "UN") {
		return false
	}
	return len(numericFieldPattern.FindAllString(line, -1)) >= 3
}
