package utils

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/Aashish23092/invoice-flow/dto"
)

const (
	amountValue = `((?:\d{1,3}(?:[,. '\x{00A0}]\d{3})+|\d+)(?:[.,]\d{1,2})?)\b`
	dateValue   = `(\d{4}-\d{2}-\d{2}|\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4})`
	idValue     = `([A-Z0-9][A-Z0-9\-/]*)`
	currency    = `(?:[$€£]|eur|usd|gbp)?`
)

// fieldPattern is one candidate regex for a field. The first capture group is the value.
type fieldPattern struct {
	re *regexp.Regexp
	// reject discards a match based on the text preceding it.
	reject func(prefix string) bool
	// accept validates the captured value.
	accept func(value string) bool
}

var looksLikeDate = regexp.MustCompile(`^\d{1,4}[/.\-]\d{1,2}[/.\-]\d{1,4}$`)

func isReference(v string) bool {
	return strings.IndexFunc(v, unicode.IsDigit) >= 0 && !looksLikeDate.MatchString(v)
}

func afterDueLabel(prefix string) bool {
	p := strings.ToLower(prefix)
	if i := strings.LastIndex(p, "\n"); i >= 0 {
		p = p[i+1:]
	}
	return strings.Contains(p, "due") || strings.Contains(p, "échéance") || strings.Contains(p, "echeance")
}

func endsWithDue(prefix string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(prefix)), "due")
}

// Patterns are tried in order and the first accepted match wins.
// English and French labels are both recognised.
var invoicePatterns = map[string][]fieldPattern{
	dto.FieldInvoiceNumber: {
		{re: regexp.MustCompile(`(?i)\binvoice\s*(?:number|num\.?|no\.?|#)?\s*[:#]?\s*` + idValue), accept: isReference},
		{re: regexp.MustCompile(`(?i)\b(INV[\-/]?[A-Z0-9][A-Z0-9\-/]*)`), accept: isReference},
		{re: regexp.MustCompile(`(?i)\bfacture\s*(?:n[°o]\.?|num[ée]ro)?\s*[:#]?\s*` + idValue), accept: isReference},
		{re: regexp.MustCompile(`(?i)#\s*` + idValue), accept: isReference},
	},
	dto.FieldTotalAmount: {
		{re: regexp.MustCompile(`(?i)\btotal\s*(?:amount|due|ttc|to\s+pay)?\s*:?\s*` + currency + `\s*` + amountValue)},
		{re: regexp.MustCompile(`(?i)montant\s+total\s*(?:ttc)?\s*:?\s*` + currency + `\s*` + amountValue)},
		{re: regexp.MustCompile(`(?i)net\s+[àa]\s+payer\s*:?\s*` + currency + `\s*` + amountValue)},
		{re: regexp.MustCompile(`(?i)\bamount\s*(?:due)?\s*:?\s*` + currency + `\s*` + amountValue)},
		{re: regexp.MustCompile(`[$€£]\s*` + amountValue)},
	},
	dto.FieldDate: {
		{re: regexp.MustCompile(`(?i)(?:invoice\s+date|date\s+of\s+issue|issue\s+date|date\s+de\s+facture|date\s+d'[ée]mission)\s*:?\s*` + dateValue)},
		{re: regexp.MustCompile(`(?i)\bdate\s*:?\s*` + dateValue), reject: endsWithDue},
		{re: regexp.MustCompile(dateValue), reject: afterDueLabel},
	},
	dto.FieldDueDate: {
		{re: regexp.MustCompile(`(?i)\bdue\s*date\s*:?\s*` + dateValue)},
		{re: regexp.MustCompile(`(?i)[ée]ch[ée]ance\s*:?\s*` + dateValue)},
		{re: regexp.MustCompile(`(?i)\bpayable\s+(?:by|before|on)\s*:?\s*` + dateValue)},
		{re: regexp.MustCompile(`(?i)\bdue\s*:?\s*` + dateValue)},
	},
	dto.FieldVendor: {
		{re: regexp.MustCompile(`(?im)^\s*(?:bill\s+)?from\s*:?\s*(\S[^\n]*)`)},
		{re: regexp.MustCompile(`(?i)\b(?:supplier|vendor|seller)\s*:?\s*(\S[^\n]*)`)},
		{re: regexp.MustCompile(`(?i)\bfournisseur\s*:?\s*(\S[^\n]*)`)},
	},
}

// ExtractInvoiceFields resolves every invoice field from free text.
// Unresolved fields are present with an empty value.
func ExtractInvoiceFields(text string) map[string]string {
	fields := make(map[string]string, len(dto.InvoiceFields))
	for _, name := range dto.InvoiceFields {
		fields[name] = matchField(text, invoicePatterns[name])
	}
	return fields
}

func matchField(text string, patterns []fieldPattern) string {
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			if p.reject != nil && p.reject(text[:loc[0]]) {
				continue
			}
			value := strings.TrimSpace(text[loc[2]:loc[3]])
			if value == "" {
				continue
			}
			if p.accept != nil && !p.accept(value) {
				continue
			}
			return value
		}
	}
	return ""
}

// ParseAmount normalizes a printed amount. The right-most separator followed by
// at most two digits is the decimal mark; other separators group thousands.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return decimal.Zero, eris.Errorf("utils: no amount in %q", s)
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") == 1 && len(cleaned)-lastComma-1 <= 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Count(cleaned, ".") > 1:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "utils: parse amount %q", s)
	}
	return amount, nil
}

// US month-first layouts are tried before day-first ones.
var invoiceDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
	"1-2-06",
	"2/1/2006",
	"2.1.2006",
	"2-1-2006",
	"2.1.06",
}

// ParseInvoiceDate parses a date as printed on an invoice.
func ParseInvoiceDate(s string) (dto.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range invoiceDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dto.DateOf(t), nil
		}
	}
	return dto.Date{}, eris.Errorf("utils: unrecognised date %q", s)
}
