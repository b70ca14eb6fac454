package model

import "time"

// CounterpartyRelation says whether the counterparty is paid or paying.
type CounterpartyRelation string

const (
	RelationSupplier CounterpartyRelation = "SUPPLIER"
	RelationClient   CounterpartyRelation = "CLIENT"
)

// AIExtractionFields is the canonical structured record produced by a provider
// after normalization. Amount is rendered as "R$ 1.234,56" and dates as DD/MM/YYYY.
type AIExtractionFields struct {
	Amount               string               `json:"amount,omitempty"`
	PaymentDate          string               `json:"payment_date,omitempty"`
	DueDate              string               `json:"due_date,omitempty"`
	IssueDate            string               `json:"issue_date,omitempty"`
	AccrualPeriod        string               `json:"accrual_period,omitempty"`
	SupplierName         string               `json:"supplier_name,omitempty"`
	Description          string               `json:"description,omitempty"`
	Category             string               `json:"category,omitempty"`
	CostCenter           string               `json:"cost_center,omitempty"`
	TaxDocumentNumber    string               `json:"tax_document_number,omitempty"`
	Counterparty         string               `json:"counterparty,omitempty"`
	Notes                string               `json:"notes,omitempty"`
	Confidence           int                  `json:"confidence"`
	CounterpartyRelation CounterpartyRelation `json:"counterparty_relation,omitempty"`
}

// PrimaryDate returns the first populated date in payment, due, issue order.
func (f AIExtractionFields) PrimaryDate() string {
	switch {
	case f.PaymentDate != "":
		return f.PaymentDate
	case f.DueDate != "":
		return f.DueDate
	default:
		return f.IssueDate
	}
}

// ProviderStatus is operational visibility only; it never blocks an attempt.
type ProviderStatus string

const (
	ProviderOnline  ProviderStatus = "ONLINE"
	ProviderOffline ProviderStatus = "OFFLINE"
	ProviderError   ProviderStatus = "ERROR"
)

// ProviderStats accumulates rolling per-provider outcomes.
type ProviderStats struct {
	TotalRequests     int                    `json:"total_requests"`
	TotalCost         float64                `json:"total_cost"`
	TotalTokens       int                    `json:"total_tokens"`
	AvgResponseTimeMs float64                `json:"avg_response_time_ms"`
	SuccessRate       float64                `json:"success_rate"`
	Successes         int                    `json:"successes"`
	FailureReasons    map[FallbackReason]int `json:"failure_reasons,omitempty"`
}

// ProviderConfig is one entry of the runtime provider roster.
type ProviderConfig struct {
	Name           string         `json:"name" yaml:"name" mapstructure:"name"`
	Kind           string         `json:"kind" yaml:"kind" mapstructure:"kind"`
	Enabled        bool           `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Priority       int            `json:"priority" yaml:"priority" mapstructure:"priority"`
	CostPerKTokens float64        `json:"cost_per_k_tokens" yaml:"cost_per_k_tokens" mapstructure:"cost_per_k_tokens"`
	Model          string         `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL        string         `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	Temperature    float64        `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens      int            `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Status         ProviderStatus `json:"status" yaml:"-" mapstructure:"-"`
	Stats          ProviderStats  `json:"stats" yaml:"-" mapstructure:"-"`
}

// FallbackReason classifies why a provider attempt was abandoned.
type FallbackReason string

const (
	FallbackNone          FallbackReason = ""
	FallbackTimeout       FallbackReason = "TIMEOUT"
	FallbackInvalidJSON   FallbackReason = "INVALID_JSON"
	FallbackProviderError FallbackReason = "PROVIDER_ERROR"
	FallbackInvalidSchema FallbackReason = "INVALID_SCHEMA"
)

// AIRunRecord is the append-only audit row written for every provider attempt.
type AIRunRecord struct {
	ID               string         `json:"id"`
	DocumentID       string         `json:"document_id"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model,omitempty"`
	FallbackReason   FallbackReason `json:"fallback_reason,omitempty"`
	OCRStrategy      string         `json:"ocr_strategy,omitempty"`
	TokensIn         int            `json:"tokens_in"`
	TokensOut        int            `json:"tokens_out"`
	CostUSD          float64        `json:"cost_usd"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Confidence       int            `json:"confidence"`
	Success          bool           `json:"success"`
	Error            string         `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
