package domain

import (
	"fmt"

	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
)

// PostingForRecord maps a resolved transaction record onto the poster's
// input contract. The variant selects category, direction and description.
func PostingForRecord(record *txdomain.TransactionRecord) (Posting, error) {
	if !record.Resolved() {
		return Posting{}, ErrMissingRequired
	}

	var (
		category    Category
		description string
	)
	switch record.SourceType {
	case txdomain.SourceTrip:
		category = CategoryEarnings
		description = fmt.Sprintf("Trip fare - Record %s (%s)", record.Trip.RecordID, record.Trip.Period)
	case txdomain.SourceViolation:
		category = CategoryPVB
		description = fmt.Sprintf("PVB Violation - Summons: %s", record.Violation.SummonsNumber)
	case txdomain.SourceToll:
		category = CategoryEZPass
		description = fmt.Sprintf("EZPass Toll - Tag %s", record.Toll.TagID)
	case txdomain.SourceInstallment:
		category = CategoryRepair
		description = fmt.Sprintf("Repair installment %s", record.NaturalKey)
	case txdomain.SourceManual:
		category = CategoryMisc
		description = "Manual adjustment"
	default:
		return Posting{}, ErrInvalidSourceType
	}

	return Posting{
		OwnerDriverID:   *record.DriverID,
		VehicleID:       record.VehicleID,
		MedallionID:     record.MedallionID,
		LeaseID:         record.LeaseID,
		Category:        category,
		Direction:       DirectionForCategory(category),
		Amount:          record.Amount(),
		SourceType:      string(record.SourceType),
		SourceID:        record.ID,
		TransactionDate: record.TransactionDate,
		Description:     description,
	}, nil
}
