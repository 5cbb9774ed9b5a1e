package migration

import (
	"errors"

	fleetdomain "github.com/bigapple/fleetops/internal/fleet/domain"
	importerdomain "github.com/bigapple/fleetops/internal/importer/domain"
	ledgerdomain "github.com/bigapple/fleetops/internal/ledger/domain"
	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	settlementdomain "github.com/bigapple/fleetops/internal/settlement/domain"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"gorm.io/gorm"
)

// RunMigrations creates or updates every table the pipeline touches so a
// fresh install is usable on startup. The unique indexes declared on the
// models are part of the contract: ledger idempotency and record dedup
// rely on them, not on application-level checks alone.
func RunMigrations(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	return db.AutoMigrate(
		&fleetdomain.Driver{},
		&fleetdomain.Vehicle{},
		&fleetdomain.Medallion{},
		&fleetdomain.VehicleRegistration{},
		&fleetdomain.Lease{},
		&importerdomain.ImportBatch{},
		&txdomain.TransactionRecord{},
		&ledgerdomain.LedgerEntry{},
		&repairdomain.RepairInvoice{},
		&repairdomain.RepairInstallment{},
		&settlementdomain.SettlementSnapshot{},
	)
}
