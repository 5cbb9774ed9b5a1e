package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the read-only master-data lookup collaborator. Every method
// returns (nil, nil) when no row matches.
type Repository interface {
	FindDriverByLicense(ctx context.Context, db *gorm.DB, license string) (*Driver, error)
	FindDriverByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Driver, error)
	ListActiveDrivers(ctx context.Context, db *gorm.DB) ([]*Driver, error)
	FindMedallionByNumber(ctx context.Context, db *gorm.DB, number string) (*Medallion, error)
	FindVehicleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Vehicle, error)
	FindMedallionByVehicleID(ctx context.Context, db *gorm.DB, vehicleID snowflake.ID) (*Medallion, error)
	FindActiveRegistrationByPlate(ctx context.Context, db *gorm.DB, plate string, at time.Time) (*VehicleRegistration, error)
	FindActiveLease(ctx context.Context, db *gorm.DB, driverID, medallionID snowflake.ID, at time.Time) (*Lease, error)
	FindActiveLeaseByVehicle(ctx context.Context, db *gorm.DB, vehicleID snowflake.ID, at time.Time) (*Lease, error)
}
