package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentacar/internal/models"
)

// CreateInspection stores one delivery or return inspection per booking vehicle.
// A second one of the same type fails with ErrDuplicateInspection.
func (db *DB) CreateInspection(ctx context.Context, in *models.Inspection) error {
	if len(in.Photos) > models.MaxInspectionPhotos {
		return fmt.Errorf("inspection has %d photos, max %d", len(in.Photos), models.MaxInspectionPhotos)
	}
	photos := in.Photos
	if photos == nil {
		photos = []string{}
	}
	rawPhotos, err := json.Marshal(photos)
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}

	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	in.CreatedAt = in.CreatedAt.UTC()

	query := `INSERT INTO inspections (booking_id, car_id, type, odometer, fuel_level, notes, photos, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		in.BookingID, in.CarID, in.Type, in.Odometer, in.FuelLevel, in.Notes, string(rawPhotos), in.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateInspection
		}
		return fmt.Errorf("failed to create inspection: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	in.ID = id
	return nil
}

// ListInspections returns a booking's inspections ordered by creation time.
func (db *DB) ListInspections(ctx context.Context, bookingID int64) ([]models.Inspection, error) {
	query := `SELECT id, booking_id, car_id, type, odometer, fuel_level, notes, photos, created_at
	          FROM inspections WHERE booking_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspections: %w", err)
	}
	defer rows.Close()

	var out []models.Inspection
	for rows.Next() {
		var in models.Inspection
		var rawPhotos string
		if err := rows.Scan(&in.ID, &in.BookingID, &in.CarID, &in.Type, &in.Odometer, &in.FuelLevel,
			&in.Notes, &rawPhotos, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inspection: %w", err)
		}
		if err := json.Unmarshal([]byte(rawPhotos), &in.Photos); err != nil {
			return nil, fmt.Errorf("failed to decode photos of inspection %d: %w", in.ID, err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// HasInspectionsAfter reports whether any inspection of the booking was created strictly after t.
func (db *DB) HasInspectionsAfter(ctx context.Context, bookingID int64, t time.Time) (bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT created_at FROM inspections WHERE booking_id = ?`, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to check inspections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return false, fmt.Errorf("failed to scan inspection time: %w", err)
		}
		if created.After(t) {
			return true, nil
		}
	}
	return false, rows.Err()
}
