package dto

// Field names produced by the OCR pipeline.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldTotalAmount   = "total_amount"
	FieldDate          = "date"
	FieldDueDate       = "due_date"
	FieldVendor        = "vendor"
)

// InvoiceFields lists the fields resolved by the regex fallback, in resolution order.
var InvoiceFields = []string{
	FieldInvoiceNumber,
	FieldTotalAmount,
	FieldDate,
	FieldDueDate,
	FieldVendor,
}

// Region is a rectangle on the page expressed as fractions of the image size.
type Region struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// TemplateHint describes a known invoice layout.
type TemplateHint struct {
	ID                int64             `json:"template_id"`
	Name              string            `json:"name"`
	Vendor            string            `json:"vendor,omitempty"`
	DetectionKeywords []string          `json:"detection_keywords"`
	Regions           map[string]Region `json:"regions_of_interest"`
}

// Recognition is the raw output of a text recognizer.
// TokenConfidences are on the recognizer's 0-100 scale; negative values mean "not recognized".
type Recognition struct {
	Text             string    `json:"text"`
	TokenConfidences []float64 `json:"token_confidences"`
}

// OcrResult is the outcome of one OCR pipeline run.
type OcrResult struct {
	MatchedTemplateID *int64            `json:"matched_template_id"`
	Fields            map[string]string `json:"fields"`
	Confidence        float64           `json:"confidence"`
	RawText           string            `json:"raw_text"`
}

// EmptyOcrResult is returned when recognition fails entirely.
func EmptyOcrResult() OcrResult {
	return OcrResult{Fields: map[string]string{}}
}

// Failed reports whether the result carries no recognized text at all.
func (r OcrResult) Failed() bool {
	return r.RawText == "" && r.Confidence == 0
}
