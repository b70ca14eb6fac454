package model

// Severity grades how much a disagreement between sources reduces trust.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Penalty is the confidence deduction applied per inconsistency of this severity.
func (s Severity) Penalty() int {
	switch s {
	case SeverityHigh:
		return 30
	case SeverityMedium:
		return 15
	case SeverityLow:
		return 5
	default:
		return 0
	}
}

// Fields compared by the inconsistency detector.
const (
	FieldAmount         = "amount"
	FieldDate           = "date"
	FieldSupplier       = "supplier"
	FieldDocumentNumber = "document"
)

// SourceValues holds the candidate value each source produced for a field.
type SourceValues struct {
	OCR      string `json:"ocr,omitempty"`
	AI       string `json:"ai,omitempty"`
	Filename string `json:"filename,omitempty"`
	Form     string `json:"form,omitempty"`
}

// Inconsistency is one flagged cross-source disagreement.
type Inconsistency struct {
	Field        string       `json:"field"`
	SourceValues SourceValues `json:"source_values"`
	Severity     Severity     `json:"severity"`
}

// ValidationVerdict is the reconciled outcome that drives routing.
type ValidationVerdict struct {
	IsValid         bool            `json:"is_valid"`
	Confidence      int             `json:"confidence"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
}

// FormFacts are the uploader-provided facts for a document. Filename is
// always present; the remaining fields are optional form input.
type FormFacts struct {
	Filename string `json:"filename"`
	Amount   string `json:"amount,omitempty"`
	Date     string `json:"date,omitempty"`
	Supplier string `json:"supplier,omitempty"`
	TaxID    string `json:"tax_id,omitempty"`
}
