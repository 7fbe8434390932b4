package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aashish23092/invoice-flow/dto"
)

func TestExtractInvoiceFieldsEnglish(t *testing.T) {
	text := `
		ACME Corp
		From: Acme Corporation Ltd
		Invoice Number: INV-2024-001
		Invoice Date: 01/15/2024
		Due Date: 02/14/2024
		Subtotal: 1,000.00
		Total: $1,234.50
	`

	fields := ExtractInvoiceFields(text)

	assert.Equal(t, "INV-2024-001", fields[dto.FieldInvoiceNumber])
	assert.Equal(t, "01/15/2024", fields[dto.FieldDate])
	assert.Equal(t, "02/14/2024", fields[dto.FieldDueDate])
	assert.Equal(t, "1,234.50", fields[dto.FieldTotalAmount])
	assert.Equal(t, "Acme Corporation Ltd", fields[dto.FieldVendor])
}

func TestExtractInvoiceFieldsFrench(t *testing.T) {
	text := `
		Fournisseur : Société Dupont SARL
		Facture N° F2024-118
		Date : 15/03/2024
		Échéance : 14/04/2024
		Montant total TTC : 1 250,00 €
	`

	fields := ExtractInvoiceFields(text)

	assert.Equal(t, "F2024-118", fields[dto.FieldInvoiceNumber])
	assert.Equal(t, "15/03/2024", fields[dto.FieldDate])
	assert.Equal(t, "14/04/2024", fields[dto.FieldDueDate])
	assert.Equal(t, "1 250,00", fields[dto.FieldTotalAmount])
	assert.Equal(t, "Société Dupont SARL", fields[dto.FieldVendor])
}

func TestExtractInvoiceFieldsDueDateIsNotIssueDate(t *testing.T) {
	fields := ExtractInvoiceFields("Due date: 03/01/2024\nTotal 80.00")

	assert.Equal(t, "03/01/2024", fields[dto.FieldDueDate])
	assert.Equal(t, "", fields[dto.FieldDate])
	assert.Equal(t, "80.00", fields[dto.FieldTotalAmount])
}

func TestExtractInvoiceFieldsMissingAreEmpty(t *testing.T) {
	fields := ExtractInvoiceFields("nothing useful here")

	require.Len(t, fields, len(dto.InvoiceFields))
	for _, name := range dto.InvoiceFields {
		value, ok := fields[name]
		assert.True(t, ok, name)
		assert.Equal(t, "", value, name)
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"$1,234.50":  "1234.5",
		"1.234,56":   "1234.56",
		"1 250,00 €": "1250",
		"40,00":      "40",
		"1,234":      "1234",
		"1.234.567":  "1234567",
		"99.9":       "99.9",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, decimal.RequireFromString(want).Equal(got), "%s: got %s", in, got)
	}

	_, err := ParseAmount("n/a")
	assert.Error(t, err)
}

func TestParseInvoiceDate(t *testing.T) {
	d, err := ParseInvoiceDate("01/15/2024")
	require.NoError(t, err)
	assert.Equal(t, dto.NewDate(2024, time.January, 15), d)

	d, err = ParseInvoiceDate("03-07-2024")
	require.NoError(t, err)
	assert.Equal(t, dto.NewDate(2024, time.March, 7), d)

	d, err = ParseInvoiceDate("15/03/2024")
	require.NoError(t, err)
	assert.Equal(t, dto.NewDate(2024, time.March, 15), d)

	d, err = ParseInvoiceDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, dto.NewDate(2024, time.February, 29), d)

	_, err = ParseInvoiceDate("tomorrow")
	assert.Error(t, err)
}
