package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

const contractColumns = `id, booking_id, contract_number, contract_text, version, signed_at,
	                 signature_data, ip_address, user_agent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(
		&c.ID, &c.BookingID, &c.ContractNumber, &c.ContractText, &c.Version, &c.SignedAt,
		&c.SignatureData, &c.IPAddress, &c.UserAgent, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) GetContractByBooking(ctx context.Context, bookingID int64) (*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE booking_id = ?`
	c, err := scanContract(db.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

func (db *DB) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = ?`
	c, err := scanContract(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// CreateContract inserts the first version of a booking's contract.
// A second contract for the same booking fails with ErrDuplicateContract.
func (db *DB) CreateContract(ctx context.Context, c *models.Contract) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.CreatedAt

	query := `INSERT INTO contracts (
				booking_id, contract_number, contract_text, version, signed_at,
				signature_data, ip_address, user_agent, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		c.BookingID, c.ContractNumber, c.ContractText, c.Version, nullTime(c.SignedAt),
		c.SignatureData, c.IPAddress, c.UserAgent, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateContract
		}
		return fmt.Errorf("failed to create contract: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// UpdateContractWithVersion writes a new contract text when the stored version still equals
// upd.FromVersion, bumping the version by one. The optional history snapshot is inserted in the
// same transaction, so a lost race leaves neither the row nor the history touched.
func (db *DB) UpdateContractWithVersion(ctx context.Context, upd models.ContractUpdate) (*models.Contract, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	query := `UPDATE contracts SET contract_text = ?, version = version + 1, signed_at = ?,
	                 signature_data = ?, ip_address = ?, user_agent = ?, updated_at = ?
	          WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		upd.ContractText, nullTime(upd.SignedAt), upd.SignatureData, upd.IPAddress, upd.UserAgent, now,
		upd.ContractID, upd.FromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update contract: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrConcurrentModification
	}

	if h := upd.History; h != nil {
		h.ContractID = upd.ContractID
		h.Version = upd.FromVersion
		if h.CreatedAt.IsZero() {
			h.CreatedAt = now
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO contract_history (
					contract_id, version, contract_text, change_reason, created_by, created_at
				) VALUES (?, ?, ?, ?, ?, ?)`,
			h.ContractID, h.Version, h.ContractText, h.ChangeReason, h.CreatedBy, h.CreatedAt.UTC())
		if err != nil {
			return nil, fmt.Errorf("failed to insert contract history: %w", err)
		}
		h.ID, _ = res.LastInsertId()
	}

	updated, err := scanContract(tx.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = ?`, upd.ContractID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload contract: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit contract update: %w", err)
	}
	return updated, nil
}

// ListContractHistory returns snapshots newest first.
func (db *DB) ListContractHistory(ctx context.Context, contractID int64) ([]models.ContractHistory, error) {
	query := `SELECT id, contract_id, version, contract_text, change_reason, created_by, created_at
	          FROM contract_history WHERE contract_id = ? ORDER BY version DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract history: %w", err)
	}
	defer rows.Close()

	var out []models.ContractHistory
	for rows.Next() {
		var h models.ContractHistory
		if err := rows.Scan(&h.ID, &h.ContractID, &h.Version, &h.ContractText, &h.ChangeReason, &h.CreatedBy, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (db *DB) CountContractHistory(ctx context.Context, contractID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contract_history WHERE contract_id = ?`, contractID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count contract history: %w", err)
	}
	return n, nil
}

const registerQuery = `SELECT ct.id, ct.contract_number, ct.booking_id,
	                 COALESCE(cu.first_name, ''), COALESCE(cu.last_name, ''), COALESCE(cu.email, ''),
	                 b.pickup_date, b.return_date, ct.version, ct.signed_at, ct.created_at
	          FROM contracts ct
	          JOIN bookings b ON b.id = ct.booking_id
	          LEFT JOIN customers cu ON cu.id = b.customer_id
	          WHERE 1 = 1`

func scanRegisterEntry(row rowScanner) (*models.ContractRegisterEntry, error) {
	var e models.ContractRegisterEntry
	var first, last string
	if err := row.Scan(&e.ContractID, &e.ContractNumber, &e.BookingID, &first, &last, &e.CustomerEmail,
		&e.PickupDate, &e.ReturnDate, &e.Version, &e.SignedAt, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CustomerName = (&models.Customer{FirstName: first, LastName: last}).FullName()
	return &e, nil
}

// ListContractRegister returns one row per contract created in [from, to), ordered by contract number.
// Zero bounds are open.
func (db *DB) ListContractRegister(ctx context.Context, from, to time.Time) ([]models.ContractRegisterEntry, error) {
	query := registerQuery
	var args []any
	if !from.IsZero() {
		query += ` AND ct.created_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND ct.created_at < ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY ct.contract_number ASC, ct.id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract register: %w", err)
	}
	defer rows.Close()

	var out []models.ContractRegisterEntry
	for rows.Next() {
		e, err := scanRegisterEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract register: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (db *DB) GetContractRegisterEntry(ctx context.Context, contractID int64) (*models.ContractRegisterEntry, error) {
	e, err := scanRegisterEntry(db.QueryRowContext(ctx, registerQuery+` AND ct.id = ?`, contractID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract register entry: %w", err)
	}
	return e, nil
}
