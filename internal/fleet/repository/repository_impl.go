package repository

import (
	"context"
	"time"

	"github.com/bigapple/fleetops/internal/fleet/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindDriverByLicense(ctx context.Context, db *gorm.DB, license string) (*domain.Driver, error) {
	var driver domain.Driver
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM drivers WHERE tlc_license_number = ?`,
		license,
	).Scan(&driver).Error
	if err != nil {
		return nil, err
	}
	if driver.ID == 0 {
		return nil, nil
	}
	return &driver, nil
}

func (r *repo) FindDriverByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Driver, error) {
	var driver domain.Driver
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM drivers WHERE id = ?`,
		id,
	).Scan(&driver).Error
	if err != nil {
		return nil, err
	}
	if driver.ID == 0 {
		return nil, nil
	}
	return &driver, nil
}

func (r *repo) ListActiveDrivers(ctx context.Context, db *gorm.DB) ([]*domain.Driver, error) {
	var drivers []*domain.Driver
	err := db.WithContext(ctx).
		Model(&domain.Driver{}).
		Where("status = ?", domain.StatusActive).
		Order("id").
		Find(&drivers).Error
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

func (r *repo) FindMedallionByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Medallion, error) {
	var medallion domain.Medallion
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM medallions WHERE medallion_number = ?`,
		number,
	).Scan(&medallion).Error
	if err != nil {
		return nil, err
	}
	if medallion.ID == 0 {
		return nil, nil
	}
	return &medallion, nil
}

func (r *repo) FindVehicleByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM vehicles WHERE id = ?`,
		id,
	).Scan(&vehicle).Error
	if err != nil {
		return nil, err
	}
	if vehicle.ID == 0 {
		return nil, nil
	}
	return &vehicle, nil
}

func (r *repo) FindMedallionByVehicleID(ctx context.Context, db *gorm.DB, vehicleID snowflake.ID) (*domain.Medallion, error) {
	var medallion domain.Medallion
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM medallions WHERE vehicle_id = ?`,
		vehicleID,
	).Scan(&medallion).Error
	if err != nil {
		return nil, err
	}
	if medallion.ID == 0 {
		return nil, nil
	}
	return &medallion, nil
}

func (r *repo) FindActiveRegistrationByPlate(ctx context.Context, db *gorm.DB, plate string, at time.Time) (*domain.VehicleRegistration, error) {
	var reg domain.VehicleRegistration
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM vehicle_registrations
		 WHERE plate_number = ?
		   AND status = ?
		   AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to >= ?)
		 ORDER BY effective_from DESC
		 LIMIT 1`,
		plate,
		domain.StatusActive,
		at,
		at,
	).Scan(&reg).Error
	if err != nil {
		return nil, err
	}
	if reg.ID == 0 {
		return nil, nil
	}
	return &reg, nil
}

func (r *repo) FindActiveLease(ctx context.Context, db *gorm.DB, driverID, medallionID snowflake.ID, at time.Time) (*domain.Lease, error) {
	var lease domain.Lease
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM leases
		 WHERE driver_id = ?
		   AND medallion_id = ?
		   AND status = ?
		   AND start_date <= ?
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY start_date DESC
		 LIMIT 1`,
		driverID,
		medallionID,
		domain.StatusActive,
		at,
		at,
	).Scan(&lease).Error
	if err != nil {
		return nil, err
	}
	if lease.ID == 0 {
		return nil, nil
	}
	return &lease, nil
}

func (r *repo) FindActiveLeaseByVehicle(ctx context.Context, db *gorm.DB, vehicleID snowflake.ID, at time.Time) (*domain.Lease, error) {
	var lease domain.Lease
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM leases
		 WHERE vehicle_id = ?
		   AND status = ?
		   AND start_date <= ?
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY start_date DESC
		 LIMIT 1`,
		vehicleID,
		domain.StatusActive,
		at,
		at,
	).Scan(&lease).Error
	if err != nil {
		return nil, err
	}
	if lease.ID == 0 {
		return nil, nil
	}
	return &lease, nil
}
