package record

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TxnStatus is a transaction lifecycle state: draft → posted → voided | reversed.
type TxnStatus string

const (
	TxnDraft    TxnStatus = "draft"
	TxnPosted   TxnStatus = "posted"
	TxnVoided   TxnStatus = "voided"
	TxnReversed TxnStatus = "reversed"
)

// Transaction is a business event header.
type Transaction struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	TransactionType   string          `json:"transaction_type" validate:"required,max=100"`
	TransactionCode   string          `json:"transaction_code,omitempty" validate:"max=100"`
	TransactionDate   time.Time       `json:"transaction_date"`
	SmartCode         string          `json:"smart_code" validate:"required,smartcode"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Currency          string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	ExchangeRate      decimal.Decimal `json:"exchange_rate"`
	Status            TxnStatus       `json:"status,omitempty" validate:"omitempty,oneof=draft posted"`
	ExternalReference string          `json:"external_reference,omitempty" validate:"max=255"`
	Description       string          `json:"description,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`

	ReversalOfID string     `json:"reversal_of_id,omitempty"`
	ReversedByID string     `json:"reversed_by_id,omitempty"`
	VoidReason   string     `json:"void_reason,omitempty"`
	VoidedBy     string     `json:"voided_by,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Line is one itemized component of a transaction.
// LineNumber zero on input means "assign the next number".
type Line struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transaction_id"`
	OrganizationID string          `json:"organization_id"`
	LineNumber     int             `json:"line_number" validate:"gte=0"`
	LineType       string          `json:"line_type" validate:"required,max=50"`
	EntityID       string          `json:"entity_id,omitempty"`
	Description    string          `json:"description,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineAmount     decimal.Decimal `json:"line_amount"`
	SmartCode      string          `json:"smart_code,omitempty" validate:"omitempty,smartcode"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Emission is the payload of an emit: a header and its lines.
type Emission struct {
	Transaction Transaction `json:"transaction"`
	Lines       []Line      `json:"lines" validate:"dive"`
}

// EmitResult is the outcome of an emit. Replayed reports that the external reference was
// already recorded with an identical payload and nothing was written.
type EmitResult struct {
	Transaction Transaction `json:"transaction"`
	Lines       []Line      `json:"lines"`
	Replayed    bool        `json:"replayed"`
}

// ReverseResult holds the flagged original and the compensating transaction.
type ReverseResult struct {
	Original Transaction `json:"original"`
	Reversal Transaction `json:"reversal"`
	Lines    []Line      `json:"lines"`
}

// TxnFilter selects transactions for Search. Zero fields do not filter.
type TxnFilter struct {
	TransactionType   string     `json:"transaction_type,omitempty"`
	Status            TxnStatus  `json:"status,omitempty" validate:"omitempty,oneof=draft posted voided reversed"`
	SmartCode         string     `json:"smart_code,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
	From              *time.Time `json:"from,omitempty"`
	To                *time.Time `json:"to,omitempty"`

	Limit  int `json:"limit,omitempty" validate:"gte=0"`
	Offset int `json:"offset,omitempty" validate:"gte=0"`
}
