package pdf

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_UnitTokenArtifacts(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"angle-slash-bracket", "ABC </< UN / 1", "ABC UN / 1"},
		{"double-angle-slash", "ABC <</ UN / 1", "ABC UN / 1"},
		{"bare-angle", "ABC <UN / 1", "ABC UN / 1"},
		{"triple-slash", "A / / / B", "A / B"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_PreservesNewlines(t *testing.T) {
	input := "line one\nline   two"
	got := Normalize(input)
	assert.Equal(t, "line one\nline two", got)
}

func TestSieve_JoinsWrappedItemLine(t *testing.T) {
	text := "00815 / REF123 --> DESCRICAO\nLONGA / UN / 10 / 2,00 / 20,00\nCNPJ: 12.345.678/0001-00"

	sieved := Sieve(text)

	require.Len(t, sieved.ItemLines, 1)
	assert.Contains(t, sieved.ItemLines[0], "00815")
	assert.Contains(t, sieved.ItemLines[0], "UN")
}

func TestSieve_DropsArtifactLines(t *testing.T) {
	text := "Rua das Flores, 123\nCNPJ: 00.000.000/0000-00\nCliente: JOAO\nOrçamento Nº: 123"

	sieved := Sieve(text)

	assert.Empty(t, sieved.ItemLines)
	assert.NotEmpty(t, sieved.HeaderLines)
}

func TestExtractFields_Cleans(t *testing.T) {
	header := []string{
		"Orçamento Nº: 27820",
		"Cliente: MARCIO APARECIDO DE SANTANA Forma de Pagto: A vista",
		"Vendedor: NYCOLAS HENDRIGO MANCINI Validade do Orçamento: 30 dias",
		"Data: 11/07/25",
		"VALOR A PAGAR R$ 2.380,00",
	}

	fields := ExtractFields(header)

	assert.Equal(t, "27820", fields.OrderNumber)
	assert.Equal(t, "MARCIO APARECIDO DE SANTANA", fields.ClientName)
	assert.Equal(t, "NYCOLAS HENDRIGO MANCINI", fields.SellerName)
	assert.Equal(t, "11/07/25", fields.OrderDate)
	assert.Equal(t, "2.380,00", fields.TotalValue)
}

func TestParseBRLCurrency(t *testing.T) {
	cases := map[string]string{
		"1.234,56":   "1234.56",
		"R$ 2.380,00": "2380.00",
		"99,90":       "99.90",
	}

	for input, want := range cases {
		got, err := ParseBRLCurrency(input)
		require.NoError(t, err)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "input=%s got=%s want=%s", input, got, want)
	}
}

func TestParseBRLDate_PromotesTwoDigitYear(t *testing.T) {
	date, err := ParseBRLDate("11/07/25")
	require.NoError(t, err)
	assert.Equal(t, 2025, date.Year())
	assert.Equal(t, 7, int(date.Month()))
	assert.Equal(t, 11, date.Day())
}

func TestExtractItems_DeduplicatesByProductCode(t *testing.T) {
	lines := []string{
		"00815 / REF123 --> DESCRICAO / UN / 10 / 2,00 / 20,00",
		"00815 / REF123 --> DESCRICAO / UN / 10 / 2,00 / 20,00",
		"03242 / REF456 --> OUTRA DESC / UN / 5 / 3,00 / 15,00",
	}

	items := ExtractItems(lines)

	require.Len(t, items, 2)
	assert.Equal(t, "00815", items[0].ProductCode)
	assert.Equal(t, "03242", items[1].ProductCode)
}

func TestExtractItems_DescriptionFallsBackToReference(t *testing.T) {
	lines := []string{"00267 / SOME PRODUCT NAME / UN / 2 / 10,00 / 20,00"}

	items := ExtractItems(lines)

	require.Len(t, items, 1)
	assert.Equal(t, "SOME PRODUCT NAME", items[0].ProductName)
}

func TestValidateItemArithmetic_DetectsMismatch(t *testing.T) {
	items := []RawItem{
		{ProductCode: "1", Quantity: 10, UnitPrice: decimal.NewFromFloat(2.00), TotalPrice: decimal.NewFromFloat(25.00)},
	}

	err := ValidateItemArithmetic(items)
	require.Error(t, err)
}

func TestValidateItemArithmetic_AcceptsWithinTolerance(t *testing.T) {
	items := []RawItem{
		{ProductCode: "1", Quantity: 10, UnitPrice: decimal.NewFromFloat(2.00), TotalPrice: decimal.NewFromFloat(20.005)},
	}

	err := ValidateItemArithmetic(items)
	assert.NoError(t, err)
}

func TestValidateOrderTotal_ReportsDifference(t *testing.T) {
	items := []RawItem{
		{ProductCode: "1", TotalPrice: decimal.NewFromFloat(1250.01)},
	}

	info := ValidateOrderTotal(items, decimal.NewFromFloat(1250.00))

	assert.False(t, info.TotalsMatch)
	assert.True(t, info.Difference.Equal(decimal.NewFromFloat(0.01)))
}
