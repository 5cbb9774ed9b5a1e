package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type SourceType string

const (
	SourceTrip        SourceType = "trip"
	SourceViolation   SourceType = "violation"
	SourceToll        SourceType = "toll"
	SourceInstallment SourceType = "installment"
	SourceManual      SourceType = "manual"
)

type RecordStatus string

const (
	StatusImported   RecordStatus = "imported"
	StatusAssociated RecordStatus = "associated"
	StatusPosted     RecordStatus = "posted"
	StatusFailed     RecordStatus = "failed"
)

// TransactionRecord is one canonical external event. Exactly one variant
// payload is populated, selected by SourceType.
type TransactionRecord struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	SourceType    SourceType   `gorm:"not null;uniqueIndex:ux_transaction_records_natural_key,priority:1" json:"source_type"`
	NaturalKey    string       `gorm:"not null;uniqueIndex:ux_transaction_records_natural_key,priority:2" json:"natural_key"`
	Status        RecordStatus `gorm:"not null;index" json:"status"`
	ImportBatchID snowflake.ID `gorm:"index" json:"import_batch_id"`

	TransactionDate time.Time `gorm:"not null;index" json:"transaction_date"`

	DriverID    *snowflake.ID `gorm:"index" json:"driver_id,omitempty"`
	VehicleID   *snowflake.ID `json:"vehicle_id,omitempty"`
	MedallionID *snowflake.ID `json:"medallion_id,omitempty"`
	LeaseID     *snowflake.ID `json:"lease_id,omitempty"`

	FailureReason *string `json:"failure_reason,omitempty"`

	Trip        TripData        `gorm:"embedded;embeddedPrefix:trip_" json:"trip,omitempty"`
	Violation   ViolationData   `gorm:"embedded;embeddedPrefix:violation_" json:"violation,omitempty"`
	Toll        TollData        `gorm:"embedded;embeddedPrefix:toll_" json:"toll,omitempty"`
	Installment InstallmentData `gorm:"embedded;embeddedPrefix:installment_" json:"installment,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}

// TripData carries one card or cash fare event.
type TripData struct {
	RecordID      string          `json:"record_id,omitempty"`
	Period        string          `json:"period,omitempty"`
	CabNumber     string          `json:"cab_number,omitempty"`
	DriverLicense string          `json:"driver_license,omitempty"`
	PaymentType   string          `json:"payment_type,omitempty"`
	Fare          decimal.Decimal `gorm:"type:decimal(12,2)" json:"fare"`
	Surcharge     decimal.Decimal `gorm:"type:decimal(12,2)" json:"surcharge"`
	Tips          decimal.Decimal `gorm:"type:decimal(12,2)" json:"tips"`
	Tolls         decimal.Decimal `gorm:"type:decimal(12,2)" json:"tolls"`
	CardFee       decimal.Decimal `gorm:"type:decimal(12,2)" json:"card_fee"`
}

// Net returns the driver-facing earnings for the trip.
func (t TripData) Net() decimal.Decimal {
	return t.Fare.Add(t.Surcharge).Add(t.Tips).Sub(t.CardFee)
}

// ViolationData carries one parking summons.
type ViolationData struct {
	SummonsNumber string          `json:"summons_number,omitempty"`
	PlateNumber   string          `json:"plate_number,omitempty"`
	State         string          `json:"state,omitempty"`
	Fine          decimal.Decimal `gorm:"type:decimal(12,2)" json:"fine"`
	Penalty       decimal.Decimal `gorm:"type:decimal(12,2)" json:"penalty"`
	Reduction     decimal.Decimal `gorm:"type:decimal(12,2)" json:"reduction"`
}

// Due returns the amount owed for the summons.
func (v ViolationData) Due() decimal.Decimal {
	return v.Fine.Add(v.Penalty).Sub(v.Reduction)
}

// TollData carries one toll posting.
type TollData struct {
	TagID       string          `json:"tag_id,omitempty"`
	PlateNumber string          `json:"plate_number,omitempty"`
	Plaza       string          `json:"plaza,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
}

// InstallmentData references the repair installment that produced the record.
type InstallmentData struct {
	InvoiceID     snowflake.ID    `json:"invoice_id,omitempty"`
	InstallmentID snowflake.ID    `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
}

// Amount returns the monetary value the record posts to the ledger.
func (r *TransactionRecord) Amount() decimal.Decimal {
	switch r.SourceType {
	case SourceTrip:
		return r.Trip.Net()
	case SourceViolation:
		return r.Violation.Due()
	case SourceToll:
		return r.Toll.Amount
	case SourceInstallment:
		return r.Installment.Amount
	default:
		return decimal.Zero
	}
}

// Resolved reports whether every reference required for posting is set.
func (r *TransactionRecord) Resolved() bool {
	return r.DriverID != nil && r.VehicleID != nil && r.MedallionID != nil && r.LeaseID != nil
}
