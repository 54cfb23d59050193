package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking is a rental reservation. CarID is set only for legacy single-vehicle bookings;
// multi-vehicle bookings attach cars through BookingVehicle rows.
type Booking struct {
	ID             int64           `json:"id"`
	CustomerID     int64           `json:"customer_id"`
	CarID          *int64          `json:"car_id,omitempty"`
	PickupDate     *time.Time      `json:"pickup_date"`
	ReturnDate     *time.Time      `json:"return_date"`
	PickupLocation string          `json:"pickup_location"`
	ReturnLocation string          `json:"return_location"`
	Status         string          `json:"status"` // pending, confirmed, active, completed, cancelled
	TotalPrice     decimal.Decimal `json:"total_price"`
	Notes          string          `json:"notes"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BookingVehicle joins a car to a multi-vehicle booking with the price agreed for the whole rental.
type BookingVehicle struct {
	ID        int64           `json:"id"`
	BookingID int64           `json:"booking_id"`
	CarID     int64           `json:"car_id"`
	Price     decimal.Decimal `json:"price"`
	Car       *Car            `json:"car,omitempty"`
}

// Driver is an additional driver. Fee is a flat charge shown on the contract.
type Driver struct {
	ID             int64           `json:"id"`
	BookingID      int64           `json:"booking_id"`
	FullName       string          `json:"full_name"`
	DocumentType   string          `json:"document_type"`
	DocumentNumber string          `json:"document_number"`
	LicenseNumber  string          `json:"license_number"`
	BirthDate      *time.Time      `json:"birth_date,omitempty"`
	Fee            decimal.Decimal `json:"fee"`
}

// Extra is an add-on (child seat, GPS...). PerDay multiplies the unit price by rental days.
type Extra struct {
	ID        int64           `json:"id"`
	BookingID int64           `json:"booking_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	PerDay    bool            `json:"per_day"`
}

// Upgrade is a coverage or category upgrade, always priced per day.
type Upgrade struct {
	ID          int64           `json:"id"`
	BookingID   int64           `json:"booking_id"`
	Name        string          `json:"name"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
	Quantity    int             `json:"quantity"`
}

// BookingDetails is a booking with everything a contract needs eagerly attached.
type BookingDetails struct {
	Booking  Booking          `json:"booking"`
	Customer *Customer        `json:"customer,omitempty"`
	Car      *Car             `json:"car,omitempty"`
	Vehicles []BookingVehicle `json:"vehicles,omitempty"`
	Drivers  []Driver         `json:"drivers,omitempty"`
	Extras   []Extra          `json:"extras,omitempty"`
	Upgrades []Upgrade        `json:"upgrades,omitempty"`
}

// IsMultiVehicle reports whether pricing comes from the join rows.
func (d *BookingDetails) IsMultiVehicle() bool {
	return len(d.Vehicles) > 0
}

// PickupStamp is the minimal projection used for contract numbering.
type PickupStamp struct {
	BookingID  int64
	PickupDate time.Time
}
