package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Driver struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	TLCLicenseNumber string       `gorm:"not null;uniqueIndex" json:"tlc_license_number"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	// PayDay is the weekday anchoring the driver's settlement window,
	// 0 = Sunday .. 6 = Saturday.
	PayDay    int       `gorm:"not null;default:0" json:"pay_day"`
	Status    string    `gorm:"not null;index" json:"status"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Driver) TableName() string {
	return "drivers"
}

type Vehicle struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	PlateNumber string       `gorm:"not null;index" json:"plate_number"`
	VIN         string       `json:"vin"`
	Status      string       `gorm:"not null;index" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Vehicle) TableName() string {
	return "vehicles"
}

type Medallion struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	MedallionNumber string        `gorm:"not null;uniqueIndex" json:"medallion_number"`
	VehicleID       *snowflake.ID `gorm:"index" json:"vehicle_id,omitempty"`
	Status          string        `gorm:"not null;index" json:"status"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Medallion) TableName() string {
	return "medallions"
}

// VehicleRegistration links a plate to a vehicle over an effective window.
// Violation and toll feeds carry plates, not vehicle ids.
type VehicleRegistration struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	PlateNumber   string       `gorm:"not null;index" json:"plate_number"`
	VehicleID     snowflake.ID `gorm:"not null;index" json:"vehicle_id"`
	EffectiveFrom time.Time    `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"`
	Status        string       `gorm:"not null;index" json:"status"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (VehicleRegistration) TableName() string {
	return "vehicle_registrations"
}

type Lease struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	DriverID    snowflake.ID `gorm:"not null;index" json:"driver_id"`
	VehicleID   snowflake.ID `gorm:"not null;index" json:"vehicle_id"`
	MedallionID snowflake.ID `gorm:"not null;index" json:"medallion_id"`
	StartDate   time.Time    `gorm:"not null" json:"start_date"`
	EndDate     *time.Time   `json:"end_date,omitempty"`
	Status      string       `gorm:"not null;index" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Lease) TableName() string {
	return "leases"
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)
