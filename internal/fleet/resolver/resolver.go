package resolver

import (
	"context"
	"strings"

	fleetdomain "github.com/bigapple/fleetops/internal/fleet/domain"
	txdomain "github.com/bigapple/fleetops/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Failure reasons recorded on unresolvable records.
const (
	ReasonMissingIdentifier = "missing source identifiers"
	ReasonNoDriver          = "no matching driver found"
	ReasonNoMedallion       = "no matching medallion found"
	ReasonNoRegistration    = "no matching vehicle registration found"
	ReasonNoVehicle         = "no matching vehicle found"
	ReasonNoActiveLease     = "no active lease covering transaction date"
	ReasonUnsupportedSource = "source type not resolvable"
)

// Resolution is the complete set of references required for posting.
// Partial resolutions are never returned.
type Resolution struct {
	DriverID    snowflake.ID
	VehicleID   snowflake.ID
	MedallionID snowflake.ID
	LeaseID     snowflake.ID
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo fleetdomain.Repository
}

type Resolver struct {
	db   *gorm.DB
	log  *zap.Logger
	repo fleetdomain.Repository
}

func New(p Params) *Resolver {
	return &Resolver{
		db:   p.DB,
		log:  p.Log.Named("fleet.resolver"),
		repo: p.Repo,
	}
}

// Resolve maps a record's raw identifiers to internal references. It is
// read-only and idempotent; re-running it on a failed record is safe. A
// non-empty reason means a data failure, err means an infrastructure failure.
func (r *Resolver) Resolve(ctx context.Context, record *txdomain.TransactionRecord) (*Resolution, string, error) {
	switch record.SourceType {
	case txdomain.SourceTrip:
		return r.resolveTrip(ctx, record)
	case txdomain.SourceViolation:
		return r.resolvePlate(ctx, record, record.Violation.PlateNumber)
	case txdomain.SourceToll:
		return r.resolvePlate(ctx, record, record.Toll.PlateNumber)
	default:
		return nil, ReasonUnsupportedSource, nil
	}
}

func (r *Resolver) resolveTrip(ctx context.Context, record *txdomain.TransactionRecord) (*Resolution, string, error) {
	license := strings.TrimSpace(record.Trip.DriverLicense)
	cabNumber := strings.TrimSpace(record.Trip.CabNumber)
	if license == "" || cabNumber == "" {
		return nil, ReasonMissingIdentifier, nil
	}

	driver, err := r.repo.FindDriverByLicense(ctx, r.db, license)
	if err != nil {
		return nil, "", err
	}
	if driver == nil {
		return nil, ReasonNoDriver, nil
	}

	medallion, err := r.repo.FindMedallionByNumber(ctx, r.db, cabNumber)
	if err != nil {
		return nil, "", err
	}
	if medallion == nil || medallion.VehicleID == nil {
		return nil, ReasonNoMedallion, nil
	}

	lease, err := r.repo.FindActiveLease(ctx, r.db, driver.ID, medallion.ID, record.TransactionDate)
	if err != nil {
		return nil, "", err
	}
	if lease == nil {
		return nil, ReasonNoActiveLease, nil
	}

	return &Resolution{
		DriverID:    driver.ID,
		VehicleID:   *medallion.VehicleID,
		MedallionID: medallion.ID,
		LeaseID:     lease.ID,
	}, "", nil
}

func (r *Resolver) resolvePlate(ctx context.Context, record *txdomain.TransactionRecord, plate string) (*Resolution, string, error) {
	plate = strings.TrimSpace(plate)
	if plate == "" {
		return nil, ReasonMissingIdentifier, nil
	}

	reg, err := r.repo.FindActiveRegistrationByPlate(ctx, r.db, plate, record.TransactionDate)
	if err != nil {
		return nil, "", err
	}
	if reg == nil {
		return nil, ReasonNoRegistration, nil
	}

	vehicle, err := r.repo.FindVehicleByID(ctx, r.db, reg.VehicleID)
	if err != nil {
		return nil, "", err
	}
	if vehicle == nil {
		return nil, ReasonNoVehicle, nil
	}

	medallion, err := r.repo.FindMedallionByVehicleID(ctx, r.db, vehicle.ID)
	if err != nil {
		return nil, "", err
	}
	if medallion == nil {
		return nil, ReasonNoMedallion, nil
	}

	lease, err := r.repo.FindActiveLeaseByVehicle(ctx, r.db, vehicle.ID, record.TransactionDate)
	if err != nil {
		return nil, "", err
	}
	if lease == nil {
		return nil, ReasonNoActiveLease, nil
	}

	return &Resolution{
		DriverID:    lease.DriverID,
		VehicleID:   vehicle.ID,
		MedallionID: medallion.ID,
		LeaseID:     lease.ID,
	}, "", nil
}

// Apply copies the resolution onto the record.
func (res *Resolution) Apply(record *txdomain.TransactionRecord) {
	driverID := res.DriverID
	vehicleID := res.VehicleID
	medallionID := res.MedallionID
	leaseID := res.LeaseID
	record.DriverID = &driverID
	record.VehicleID = &vehicleID
	record.MedallionID = &medallionID
	record.LeaseID = &leaseID
}
