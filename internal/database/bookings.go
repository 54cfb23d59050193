package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

func (db *DB) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `INSERT INTO customers (
				first_name, last_name, email, phone, document_type, document_number,
				license_number, address, city, postal_code, country, nationality,
				birth_date, preferred_language, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.DocumentType, c.DocumentNumber,
		c.LicenseNumber, c.Address, c.City, c.PostalCode, c.Country, c.Nationality,
		nullTime(c.BirthDate), c.PreferredLanguage, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (db *DB) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT id, first_name, last_name, email, phone, document_type, document_number,
	                 license_number, address, city, postal_code, country, nationality,
	                 birth_date, preferred_language, created_at
	          FROM customers WHERE id = ?`
	var c models.Customer
	err := db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.DocumentType, &c.DocumentNumber,
		&c.LicenseNumber, &c.Address, &c.City, &c.PostalCode, &c.Country, &c.Nationality,
		&c.BirthDate, &c.PreferredLanguage, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

func (db *DB) CreateCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (registration, brand, model, year, color, fuel_type, daily_rate, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		car.Registration, car.Brand, car.Model, car.Year, car.Color, car.FuelType, car.DailyRate.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	car.ID = id
	car.CreatedAt = now
	return nil
}

const carColumns = `c.id, c.registration, c.brand, c.model, c.year, c.color, c.fuel_type, c.daily_rate, c.created_at`

func (db *DB) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars c WHERE c.id = ?`
	var car models.Car
	err := db.QueryRowContext(ctx, query, id).Scan(
		&car.ID, &car.Registration, &car.Brand, &car.Model, &car.Year, &car.Color, &car.FuelType, &car.DailyRate, &car.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return &car, nil
}

// CreateBooking inserts the booking with its vehicles, drivers, extras and upgrades in one transaction.
func (db *DB) CreateBooking(ctx context.Context, details *models.BookingDetails) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	b := &details.Booking
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	query := `INSERT INTO bookings (
				customer_id, car_id, pickup_date, return_date, pickup_location, return_location,
				status, total_price, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		nullID(b.CustomerID), nullIDPtr(b.CarID), nullTime(b.PickupDate), nullTime(b.ReturnDate),
		b.PickupLocation, b.ReturnLocation, b.Status, b.TotalPrice.String(), b.Notes,
		b.CreatedAt.UTC(), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	b.ID = id

	if err := insertBookingChildren(ctx, tx, details); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func insertBookingChildren(ctx context.Context, tx *sql.Tx, details *models.BookingDetails) error {
	bookingID := details.Booking.ID
	for i := range details.Vehicles {
		v := &details.Vehicles[i]
		v.BookingID = bookingID
		res, err := tx.ExecContext(ctx, `INSERT INTO booking_vehicles (booking_id, car_id, price) VALUES (?, ?, ?)`,
			bookingID, v.CarID, v.Price.String())
		if err != nil {
			return fmt.Errorf("failed to insert booking vehicle: %w", err)
		}
		v.ID, _ = res.LastInsertId()
	}
	for i := range details.Drivers {
		d := &details.Drivers[i]
		d.BookingID = bookingID
		res, err := tx.ExecContext(ctx, `INSERT INTO booking_drivers (
				booking_id, full_name, document_type, document_number, license_number, birth_date, fee
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			bookingID, d.FullName, d.DocumentType, d.DocumentNumber, d.LicenseNumber, nullTime(d.BirthDate), d.Fee.String())
		if err != nil {
			return fmt.Errorf("failed to insert booking driver: %w", err)
		}
		d.ID, _ = res.LastInsertId()
	}
	for i := range details.Extras {
		e := &details.Extras[i]
		e.BookingID = bookingID
		res, err := tx.ExecContext(ctx, `INSERT INTO booking_extras (booking_id, name, unit_price, quantity, per_day)
				VALUES (?, ?, ?, ?, ?)`,
			bookingID, e.Name, e.UnitPrice.String(), e.Quantity, e.PerDay)
		if err != nil {
			return fmt.Errorf("failed to insert booking extra: %w", err)
		}
		e.ID, _ = res.LastInsertId()
	}
	for i := range details.Upgrades {
		u := &details.Upgrades[i]
		u.BookingID = bookingID
		res, err := tx.ExecContext(ctx, `INSERT INTO booking_upgrades (booking_id, name, price_per_day, quantity)
				VALUES (?, ?, ?, ?)`,
			bookingID, u.Name, u.PricePerDay.String(), u.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert booking upgrade: %w", err)
		}
		u.ID, _ = res.LastInsertId()
	}
	return nil
}

// UpdateBooking rewrites the editable booking columns. Pickup date is left as stored.
func (db *DB) UpdateBooking(ctx context.Context, b *models.Booking) error {
	query := `UPDATE bookings SET customer_id = ?, car_id = ?, return_date = ?, pickup_location = ?,
	                 return_location = ?, status = ?, total_price = ?, notes = ?, updated_at = ?
	          WHERE id = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		nullID(b.CustomerID), nullIDPtr(b.CarID), nullTime(b.ReturnDate), b.PickupLocation,
		b.ReturnLocation, b.Status, b.TotalPrice.String(), b.Notes, now, b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	b.UpdatedAt = now
	return nil
}

// ReplaceBookingVehicles swaps the vehicle set of a multi-vehicle booking.
func (db *DB) ReplaceBookingVehicles(ctx context.Context, bookingID int64, vehicles []models.BookingVehicle) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM booking_vehicles WHERE booking_id = ?`, bookingID); err != nil {
		return fmt.Errorf("failed to clear booking vehicles: %w", err)
	}
	details := &models.BookingDetails{Booking: models.Booking{ID: bookingID}, Vehicles: vehicles}
	if err := insertBookingChildren(ctx, tx, details); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE bookings SET updated_at = ? WHERE id = ?`, time.Now().UTC(), bookingID); err != nil {
		return fmt.Errorf("failed to touch booking: %w", err)
	}
	return tx.Commit()
}

const bookingColumns = `id, customer_id, car_id, pickup_date, return_date, pickup_location, return_location,
	                 status, total_price, notes, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	var b models.Booking
	var customerID sql.NullInt64
	err := row.Scan(
		&b.ID, &customerID, &b.CarID, &b.PickupDate, &b.ReturnDate, &b.PickupLocation, &b.ReturnLocation,
		&b.Status, &b.TotalPrice, &b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.CustomerID = customerID.Int64
	return &b, nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetBookingDetails loads a booking with customer, cars, drivers, extras and upgrades.
// A dangling or empty customer reference yields a nil Customer, not an error.
func (db *DB) GetBookingDetails(ctx context.Context, id int64) (*models.BookingDetails, error) {
	booking, err := db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	details := &models.BookingDetails{Booking: *booking}

	if booking.CustomerID != 0 {
		customer, err := db.GetCustomer(ctx, booking.CustomerID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		details.Customer = customer
	}

	if booking.CarID != nil {
		car, err := db.GetCar(ctx, *booking.CarID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		details.Car = car
	}

	if details.Vehicles, err = db.getBookingVehicles(ctx, id); err != nil {
		return nil, err
	}
	if details.Drivers, err = db.getBookingDrivers(ctx, id); err != nil {
		return nil, err
	}
	if details.Extras, err = db.getBookingExtras(ctx, id); err != nil {
		return nil, err
	}
	if details.Upgrades, err = db.getBookingUpgrades(ctx, id); err != nil {
		return nil, err
	}
	return details, nil
}

func (db *DB) getBookingVehicles(ctx context.Context, bookingID int64) ([]models.BookingVehicle, error) {
	query := `SELECT bv.id, bv.booking_id, bv.car_id, bv.price, ` + carColumns + `
	          FROM booking_vehicles bv JOIN cars c ON c.id = bv.car_id
	          WHERE bv.booking_id = ? ORDER BY bv.id ASC`
	rows, err := db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking vehicles: %w", err)
	}
	defer rows.Close()

	var out []models.BookingVehicle
	for rows.Next() {
		var v models.BookingVehicle
		car := &models.Car{}
		if err := rows.Scan(
			&v.ID, &v.BookingID, &v.CarID, &v.Price,
			&car.ID, &car.Registration, &car.Brand, &car.Model, &car.Year, &car.Color, &car.FuelType, &car.DailyRate, &car.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking vehicle: %w", err)
		}
		v.Car = car
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) getBookingDrivers(ctx context.Context, bookingID int64) ([]models.Driver, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, full_name, document_type, document_number,
	                 license_number, birth_date, fee
	          FROM booking_drivers WHERE booking_id = ? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking drivers: %w", err)
	}
	defer rows.Close()

	var out []models.Driver
	for rows.Next() {
		var d models.Driver
		if err := rows.Scan(&d.ID, &d.BookingID, &d.FullName, &d.DocumentType, &d.DocumentNumber,
			&d.LicenseNumber, &d.BirthDate, &d.Fee); err != nil {
			return nil, fmt.Errorf("failed to scan booking driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) getBookingExtras(ctx context.Context, bookingID int64) ([]models.Extra, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, name, unit_price, quantity, per_day
	          FROM booking_extras WHERE booking_id = ? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking extras: %w", err)
	}
	defer rows.Close()

	var out []models.Extra
	for rows.Next() {
		var e models.Extra
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Name, &e.UnitPrice, &e.Quantity, &e.PerDay); err != nil {
			return nil, fmt.Errorf("failed to scan booking extra: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) getBookingUpgrades(ctx context.Context, bookingID int64) ([]models.Upgrade, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, name, price_per_day, quantity
	          FROM booking_upgrades WHERE booking_id = ? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking upgrades: %w", err)
	}
	defer rows.Close()

	var out []models.Upgrade
	for rows.Next() {
		var u models.Upgrade
		if err := rows.Scan(&u.ID, &u.BookingID, &u.Name, &u.PricePerDay, &u.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan booking upgrade: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListPickupsBetween returns bookings whose pickup falls in [from, to).
func (db *DB) ListPickupsBetween(ctx context.Context, from, to time.Time) ([]models.PickupStamp, error) {
	query := `SELECT id, pickup_date FROM bookings
	          WHERE pickup_date IS NOT NULL AND pickup_date >= ? AND pickup_date < ?
	          ORDER BY pickup_date ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list pickups: %w", err)
	}
	defer rows.Close()

	var out []models.PickupStamp
	for rows.Next() {
		var s models.PickupStamp
		if err := rows.Scan(&s.BookingID, &s.PickupDate); err != nil {
			return nil, fmt.Errorf("failed to scan pickup: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullIDPtr(id *int64) any {
	if id == nil || *id == 0 {
		return nil
	}
	return *id
}
