package models

import "time"

const (
	InspectionDelivery = "delivery"
	InspectionReturn   = "return"

	// MaxInspectionPhotos is the photo limit per inspection.
	MaxInspectionPhotos = 5
)

// Inspection is a vehicle condition check at delivery or return.
// Photos hold storage keys resolved through the asset resolver.
type Inspection struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	CarID     int64     `json:"car_id"`
	Type      string    `json:"type"`
	Odometer  int64     `json:"odometer"`
	FuelLevel string    `json:"fuel_level"`
	Notes     string    `json:"notes"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"created_at"`
}

func ValidInspectionType(t string) bool {
	return t == InspectionDelivery || t == InspectionReturn
}

// InspectionLink grants unauthenticated read access to a booking's inspection photos.
type InspectionLink struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (l *InspectionLink) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
