// Package epcqr parses EPC069-12 ("GiroCode") SEPA credit transfer QR payloads.
package epcqr

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

const (
	serviceTag     = "BCD"
	identification = "SCT"
	minLines       = 7
)

// Payment is the decoded content of a payment QR code.
type Payment struct {
	Version       string
	BIC           string
	Beneficiary   string
	IBAN          string
	Currency      string
	Amount        decimal.Decimal
	HasAmount     bool
	Purpose       string
	Reference     string
	RemittanceMsg string
}

// Parse decodes an EPC payload. Lines are separated by LF or CRLF.
func Parse(payload string) (*Payment, error) {
	lines := strings.Split(strings.ReplaceAll(payload, "\r\n", "\n"), "\n")
	if len(lines) < minLines {
		return nil, eris.Errorf("epcqr: expected at least %d lines, got %d", minLines, len(lines))
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	if lines[0] != serviceTag {
		return nil, eris.Errorf("epcqr: unexpected service tag %q", lines[0])
	}
	if lines[3] != identification {
		return nil, eris.Errorf("epcqr: unexpected identification %q", lines[3])
	}

	p := &Payment{
		Version:     lines[1],
		BIC:         lines[4],
		Beneficiary: lines[5],
		IBAN:        strings.ReplaceAll(lines[6], " ", ""),
	}
	if p.Beneficiary == "" || p.IBAN == "" {
		return nil, eris.New("epcqr: beneficiary and IBAN are required")
	}

	if len(lines) > 7 && lines[7] != "" {
		if err := p.parseAmount(lines[7]); err != nil {
			return nil, err
		}
	}
	if len(lines) > 8 {
		p.Purpose = lines[8]
	}
	if len(lines) > 9 {
		p.Reference = lines[9]
	}
	if len(lines) > 10 {
		p.RemittanceMsg = lines[10]
	}
	return p, nil
}

// parseAmount reads a field such as "EUR123.45".
func (p *Payment) parseAmount(field string) error {
	if len(field) < 4 {
		return eris.Errorf("epcqr: malformed amount %q", field)
	}
	amount, err := decimal.NewFromString(field[3:])
	if err != nil {
		return eris.Wrapf(err, "epcqr: parse amount %q", field)
	}
	if amount.IsNegative() {
		return eris.Errorf("epcqr: negative amount %q", field)
	}
	p.Currency = strings.ToUpper(field[:3])
	p.Amount = amount
	p.HasAmount = true
	return nil
}

// RemittanceInfo returns the structured reference, or the free text when absent.
func (p *Payment) RemittanceInfo() string {
	if p.Reference != "" {
		return p.Reference
	}
	return p.RemittanceMsg
}
