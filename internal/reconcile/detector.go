// Package reconcile cross-checks extracted text, AI output and uploader facts
// and scores the result into a single validation verdict.
package reconcile

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/money"
)

// Thresholds for flagging disagreements.
const (
	AmountHighDiff   = 0.20
	AmountMediumDiff = 0.05
	DateHighDays     = 365
	DateMediumDays   = 30
	NameHighSim      = 0.3
	NameMediumSim    = 0.6
	ValidConfidence  = 70
)

// InconsistencyStore persists the flagged set of a document, replacing any previous one.
type InconsistencyStore interface {
	ReplaceInconsistencies(ctx context.Context, documentID string, set []model.Inconsistency) error
}

// Detector evaluates and persists inconsistencies.
type Detector struct {
	store InconsistencyStore
}

// NewDetector returns a Detector. A nil store skips persistence.
func NewDetector(store InconsistencyStore) *Detector {
	return &Detector{store: store}
}

// DetectInconsistencies compares every source, stores the flagged set under
// documentID and returns the verdict. The verdict is returned even when
// persistence fails.
func (d *Detector) DetectInconsistencies(ctx context.Context, documentID, text string, fields *model.AIExtractionFields, form model.FormFacts) (*model.ValidationVerdict, error) {
	verdict := Evaluate(text, fields, form)
	log := zap.L().With(zap.String("document_id", documentID))

	if d.store != nil {
		if err := d.store.ReplaceInconsistencies(ctx, documentID, verdict.Inconsistencies); err != nil {
			return &verdict, eris.Wrap(err, "reconcile: store inconsistencies")
		}
	}

	log.Info("reconcile: verdict",
		zap.Bool("valid", verdict.IsValid),
		zap.Int("confidence", verdict.Confidence),
		zap.Int("inconsistencies", len(verdict.Inconsistencies)),
	)
	return &verdict, nil
}

// Evaluate is the pure comparison step. fields may be nil when AI analysis
// produced nothing.
func Evaluate(text string, fields *model.AIExtractionFields, form model.FormFacts) model.ValidationVerdict {
	if fields == nil {
		fields = &model.AIExtractionFields{}
	}
	var found []model.Inconsistency
	for _, check := range []func(string, *model.AIExtractionFields, model.FormFacts) (model.Inconsistency, bool){
		checkAmount, checkDate, checkSupplier, checkTaxID,
	} {
		if inc, ok := check(text, fields, form); ok {
			found = append(found, inc)
		}
	}
	conf, valid := Score(found)
	if found == nil {
		found = []model.Inconsistency{}
	}
	return model.ValidationVerdict{IsValid: valid, Confidence: conf, Inconsistencies: found}
}

// Score deducts each inconsistency's penalty from 100.
func Score(set []model.Inconsistency) (int, bool) {
	conf := 100
	for _, inc := range set {
		conf -= inc.Severity.Penalty()
	}
	conf = max(conf, 0)
	return conf, len(set) == 0 || conf >= ValidConfidence
}

func checkAmount(text string, fields *model.AIExtractionFields, form model.FormFacts) (model.Inconsistency, bool) {
	sv := model.SourceValues{
		OCR:      OCRAmount(text),
		AI:       fields.Amount,
		Filename: FilenameAmount(form.Filename),
		Form:     form.Amount,
	}
	declared := firstNonEmpty(sv.Form, sv.Filename)

	var sev model.Severity
	for _, pair := range [][2]string{{sv.OCR, sv.AI}, {declared, sv.OCR}} {
		diff, ok := amountDiff(pair[0], pair[1])
		if !ok {
			continue
		}
		switch {
		case diff > AmountHighDiff:
			sev = worse(sev, model.SeverityHigh)
		case diff > AmountMediumDiff:
			sev = worse(sev, model.SeverityMedium)
		}
	}
	return model.Inconsistency{Field: model.FieldAmount, SourceValues: sv, Severity: sev}, sev != ""
}

func amountDiff(a, b string) (float64, bool) {
	if a == "" || b == "" {
		return 0, false
	}
	x, err := money.Parse(a)
	if err != nil {
		return 0, false
	}
	y, err := money.Parse(b)
	if err != nil {
		return 0, false
	}
	return money.RelativeDiff(x, y), true
}

func checkDate(text string, fields *model.AIExtractionFields, form model.FormFacts) (model.Inconsistency, bool) {
	sv := model.SourceValues{AI: fields.PrimaryDate(), Form: form.Date}
	if dates := Dates(text); len(dates) > 0 {
		sv.OCR = dates[0]
	}
	sv.Filename = FilenameDate(form.Filename)

	ocr, ok := ParseDate(sv.OCR)
	if !ok {
		return model.Inconsistency{}, false
	}
	other, ok := ParseDate(ai.NormalizeDate(firstNonEmpty(sv.AI, sv.Form)))
	if !ok {
		return model.Inconsistency{}, false
	}
	days := math.Abs(ocr.Sub(other).Hours() / 24)

	var sev model.Severity
	switch {
	case days > DateHighDays:
		sev = model.SeverityHigh
	case days > DateMediumDays:
		sev = model.SeverityMedium
	}
	return model.Inconsistency{Field: model.FieldDate, SourceValues: sv, Severity: sev}, sev != ""
}

func checkSupplier(text string, fields *model.AIExtractionFields, form model.FormFacts) (model.Inconsistency, bool) {
	sv := model.SourceValues{
		OCR:      OCRSupplier(text),
		AI:       firstNonEmpty(fields.SupplierName, fields.Counterparty),
		Filename: FilenameSupplier(form.Filename),
		Form:     form.Supplier,
	}
	other := firstNonEmpty(sv.AI, sv.Form)
	if sv.OCR == "" || other == "" {
		return model.Inconsistency{}, false
	}

	var sev model.Severity
	switch sim := Similarity(sv.OCR, other); {
	case sim < NameHighSim:
		sev = model.SeverityHigh
	case sim < NameMediumSim:
		sev = model.SeverityMedium
	}
	return model.Inconsistency{Field: model.FieldSupplier, SourceValues: sv, Severity: sev}, sev != ""
}

func checkTaxID(text string, fields *model.AIExtractionFields, form model.FormFacts) (model.Inconsistency, bool) {
	sv := model.SourceValues{
		AI:       fields.TaxDocumentNumber,
		Filename: FilenameTaxID(form.Filename),
		Form:     form.TaxID,
	}
	want := Digits(firstNonEmpty(sv.AI, sv.Form))
	ids := TaxIDs(text)
	if want == "" || len(ids) == 0 {
		return model.Inconsistency{}, false
	}
	sv.OCR = ids[0]
	for _, id := range ids {
		if Digits(id) == want {
			return model.Inconsistency{}, false
		}
	}
	return model.Inconsistency{Field: model.FieldDocumentNumber, SourceValues: sv, Severity: model.SeverityHigh}, true
}

func worse(a, b model.Severity) model.Severity {
	if b.Penalty() > a.Penalty() {
		return b
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
