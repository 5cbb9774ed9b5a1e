package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type Category string

const (
	CategoryEarnings       Category = "earnings"
	CategoryLease          Category = "lease"
	CategoryRepair         Category = "repair"
	CategoryLoan           Category = "loan"
	CategoryEZPass         Category = "ezpass"
	CategoryPVB            Category = "pvb"
	CategoryTLC            Category = "tlc"
	CategoryTaxes          Category = "taxes"
	CategoryMisc           Category = "misc"
	CategoryInterimPayment Category = "interim_payment"
	CategoryDeposit        Category = "deposit"
)

// DirectionForCategory returns the ledger direction money in that category
// flows for the driver. Earnings and payments received are credits, dues are
// debits.
func DirectionForCategory(c Category) Direction {
	switch c {
	case CategoryEarnings, CategoryInterimPayment, CategoryDeposit:
		return DirectionCredit
	default:
		return DirectionDebit
	}
}

// LedgerEntry is immutable once written. Corrections are new offsetting
// entries, never updates.
type LedgerEntry struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerDriverID snowflake.ID  `gorm:"not null;index" json:"owner_driver_id"`
	VehicleID     *snowflake.ID `json:"vehicle_id,omitempty"`
	MedallionID   *snowflake.ID `json:"medallion_id,omitempty"`
	LeaseID       *snowflake.ID `json:"lease_id,omitempty"`

	Category  Category        `gorm:"not null;index" json:"category"`
	Direction Direction       `gorm:"not null" json:"direction"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`

	SourceType string       `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:1" json:"source_type"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:2" json:"source_id"`

	TransactionDate time.Time `gorm:"not null;index" json:"transaction_date"`
	Description     string    `json:"description"`
	PostingRef      string    `gorm:"not null" json:"posting_ref"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// SourceTypeReversal marks offsetting entries created by Reverse. Their
// source id is the reversed entry's id, so an entry can be reversed at most
// once.
const SourceTypeReversal = "reversal"

// Posting is the poster's input contract. All writers (trip posting,
// violation posting, toll posting, repair installments, manual adjustments)
// build one of these.
type Posting struct {
	OwnerDriverID   snowflake.ID
	VehicleID       *snowflake.ID
	MedallionID     *snowflake.ID
	LeaseID         *snowflake.ID
	Category        Category
	Direction       Direction
	Amount          decimal.Decimal
	SourceType      string
	SourceID        snowflake.ID
	TransactionDate time.Time
	Description     string
}

// ListFilter narrows entry listings for the read-only API.
type ListFilter struct {
	DriverID   snowflake.ID
	Category   Category
	SourceType string
	From       *time.Time
	To         *time.Time
	Limit      int
}
