package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type SnapshotState string

const (
	SnapshotDraft     SnapshotState = "draft"
	SnapshotFinalized SnapshotState = "finalized"
	SnapshotPaid      SnapshotState = "paid"
	SnapshotVoided    SnapshotState = "voided"
)

var (
	ErrAlreadyFinalized  = errors.New("already finalized")
	ErrSnapshotNotFound  = errors.New("settlement snapshot not found")
	ErrInvalidTransition = errors.New("invalid snapshot state transition")
)

// SettlementSnapshot is the weekly driver transaction report (DTR). Once
// finalized it is immutable; corrections require offsetting ledger entries
// and a new snapshot version.
type SettlementSnapshot struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	DriverID snowflake.ID `gorm:"not null;uniqueIndex:ux_settlement_snapshots_window,priority:1" json:"driver_id"`

	PeriodStart time.Time `gorm:"not null;uniqueIndex:ux_settlement_snapshots_window,priority:2" json:"period_start"`
	PeriodEnd   time.Time `gorm:"not null" json:"period_end"`

	ReceiptNumber string `gorm:"not null;uniqueIndex" json:"receipt_number"`

	Earnings        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"earnings"`
	InterimPayments decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"interim_payments"`
	Deposits        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"deposits"`

	LeaseDues  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"lease_dues"`
	RepairDues decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"repair_dues"`
	LoanDues   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"loan_dues"`
	EZPassDues decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"ezpass_dues"`
	PVBDues    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"pvb_dues"`
	TLCDues    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tlc_dues"`
	TaxDues    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"tax_dues"`
	MiscDues   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"misc_dues"`

	TotalCredits decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_credits"`
	TotalDebits  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_debits"`
	Balance      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"balance"`

	State       SnapshotState `gorm:"not null;index" json:"state"`
	FinalizedAt *time.Time    `json:"finalized_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SettlementSnapshot) TableName() string {
	return "settlement_snapshots"
}

var snapshotTransitions = map[SnapshotState][]SnapshotState{
	SnapshotDraft:     {SnapshotFinalized, SnapshotVoided},
	SnapshotFinalized: {SnapshotPaid, SnapshotVoided},
	SnapshotPaid:      {},
	SnapshotVoided:    {},
}

// TransitionSnapshot validates the edge and mutates the snapshot state.
func TransitionSnapshot(snapshot *SettlementSnapshot, to SnapshotState) error {
	for _, allowed := range snapshotTransitions[snapshot.State] {
		if allowed == to {
			snapshot.State = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, snapshot.State, to)
}
