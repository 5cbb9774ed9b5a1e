package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type InvoiceState string

const (
	InvoiceDraft     InvoiceState = "draft"
	InvoiceOpen      InvoiceState = "open"
	InvoiceHold      InvoiceState = "hold"
	InvoiceClosed    InvoiceState = "closed"
	InvoiceCancelled InvoiceState = "cancelled"
)

type InstallmentState string

const (
	InstallmentScheduled InstallmentState = "scheduled"
	InstallmentPosted    InstallmentState = "posted"
	InstallmentPaid      InstallmentState = "paid"
)

// StartWeek selects the amortization anchor relative to the current
// payment period.
type StartWeek string

const (
	StartWeekCurrent StartWeek = "current"
	StartWeekNext    StartWeek = "next"
)

var (
	ErrInvalidPrincipal     = errors.New("invalid principal amount")
	ErrInvoiceNotFound      = errors.New("repair invoice not found")
	ErrInvalidTransition    = errors.New("invalid invoice state transition")
	ErrHasPostedInstallment = errors.New("invoice has posted installments")
	ErrScheduleMismatch     = errors.New("installment schedule does not sum to principal")
	ErrMissingOwner         = errors.New("missing owner references")
)

// RepairInvoice is a lump obligation amortized into weekly installments.
// Balance only ever decreases.
type RepairInvoice struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceNumber string       `gorm:"not null;uniqueIndex" json:"invoice_number"`

	DriverID    snowflake.ID `gorm:"not null;index" json:"driver_id"`
	VehicleID   snowflake.ID `gorm:"not null" json:"vehicle_id"`
	MedallionID snowflake.ID `gorm:"not null" json:"medallion_id"`
	LeaseID     snowflake.ID `gorm:"not null" json:"lease_id"`

	PrincipalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"principal_amount"`
	WeeklyInstallment decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"weekly_installment"`
	Balance           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`

	State       InvoiceState `gorm:"not null;index" json:"state"`
	StartWeek   StartWeek    `gorm:"not null" json:"start_week"`
	Description string       `json:"description"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RepairInvoice) TableName() string {
	return "repair_invoices"
}

// RepairInstallment is one scheduled weekly debit. The full schedule is
// materialized when the invoice is created.
type RepairInstallment struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID         snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	InstallmentNumber string       `gorm:"not null;uniqueIndex" json:"installment_number"`

	WeekStart time.Time `gorm:"not null;index" json:"week_start"`
	WeekEnd   time.Time `gorm:"not null" json:"week_end"`

	PaymentAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"payment_amount"`
	PriorBalance  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"prior_balance"`
	Balance       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`

	State            InstallmentState `gorm:"not null;index" json:"state"`
	LedgerPostingRef *string          `json:"ledger_posting_ref,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RepairInstallment) TableName() string {
	return "repair_installments"
}

var invoiceTransitions = map[InvoiceState][]InvoiceState{
	InvoiceDraft:     {InvoiceOpen, InvoiceCancelled},
	InvoiceOpen:      {InvoiceClosed, InvoiceHold},
	InvoiceHold:      {InvoiceOpen, InvoiceCancelled},
	InvoiceClosed:    {},
	InvoiceCancelled: {},
}

// TransitionInvoice validates the edge and mutates the invoice state.
func TransitionInvoice(invoice *RepairInvoice, to InvoiceState) error {
	for _, allowed := range invoiceTransitions[invoice.State] {
		if allowed == to {
			invoice.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, invoice.State, to)
}
