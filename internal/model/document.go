package model

import (
	"strings"
	"time"
)

// DocumentType is the uploader-declared business type. It drives routing only.
type DocumentType string

const (
	DocumentPago         DocumentType = "PAGO"
	DocumentAgendado     DocumentType = "AGENDADO"
	DocumentEmitirBoleto DocumentType = "EMITIR_BOLETO"
	DocumentEmitirNF     DocumentType = "EMITIR_NF"
)

// ParseDocumentType normalizes s; unknown values are returned as-is so routing
// can fall through to the default state.
func ParseDocumentType(s string) DocumentType {
	return DocumentType(strings.ToUpper(strings.TrimSpace(s)))
}

// Known reports whether t is one of the declared types.
func (t DocumentType) Known() bool {
	switch t {
	case DocumentPago, DocumentAgendado, DocumentEmitirBoleto, DocumentEmitirNF:
		return true
	}
	return false
}

// DocumentStatus is the lifecycle state owned by the pipeline coordinator.
type DocumentStatus string

const (
	StatusProcessing      DocumentStatus = "PROCESSANDO"
	StatusPendingReview   DocumentStatus = "PENDENTE_REVISAO"
	StatusPaidToReconcile DocumentStatus = "PAGO_A_CONCILIAR"
	StatusToSchedule      DocumentStatus = "AGENDAR"
	StatusAwaitingReceipt DocumentStatus = "AGUARDANDO_RECEBIMENTO"
	StatusClassified      DocumentStatus = "CLASSIFICADO"
)

// TaskType is the operational follow-up created alongside a routing decision.
type TaskType string

const (
	TaskReconcile    TaskType = "CONCILIACAO"
	TaskSchedule     TaskType = "AGENDAR"
	TaskIssueBoleto  TaskType = "EMITIR_BOLETO"
	TaskIssueInvoice TaskType = "EMITIR_NF"
	TaskReview       TaskType = "REVISAO"
)

// TaskPriority for operational tasks.
type TaskPriority string

const (
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
)

// Document is the persisted lifecycle view of one uploaded file.
type Document struct {
	ID            string         `json:"id"`
	OriginalName  string         `json:"original_name"`
	Path          string         `json:"path"`
	Type          DocumentType   `json:"type"`
	Status        DocumentStatus `json:"status"`
	Amount        string         `json:"amount,omitempty"`
	DueDate       string         `json:"due_date,omitempty"`
	Supplier      string         `json:"supplier,omitempty"`
	ExtractedData string         `json:"extracted_data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// DocumentUpdate carries the fields the coordinator writes back. Empty strings
// leave the stored value untouched.
type DocumentUpdate struct {
	OriginalName  string         `json:"original_name,omitempty"`
	Path          string         `json:"path,omitempty"`
	Type          DocumentType   `json:"type,omitempty"`
	Status        DocumentStatus `json:"status"`
	Amount        string         `json:"amount,omitempty"`
	DueDate       string         `json:"due_date,omitempty"`
	Supplier      string         `json:"supplier,omitempty"`
	ExtractedData string         `json:"extracted_data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// Log actions written to the document audit trail.
const (
	LogProcessingStart    = "PROCESSING_START"
	LogOCRComplete        = "OCR_COMPLETE"
	LogAIComplete         = "AI_ANALYSIS_COMPLETE"
	LogValidationComplete = "VALIDATION_COMPLETE"
	LogProcessingComplete = "PROCESSING_COMPLETE"
	LogProcessingError    = "PROCESSING_ERROR"
)

// Log outcome values.
const (
	LogSuccess = "SUCCESS"
	LogWarning = "WARNING"
	LogError   = "ERROR"
)

// DocumentLog is one audit trail entry.
type DocumentLog struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Action     string         `json:"action"`
	Status     string         `json:"status"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
