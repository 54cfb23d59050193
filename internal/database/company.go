package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

// GetActiveCompanyConfig returns the most recently updated active branding record.
func (db *DB) GetActiveCompanyConfig(ctx context.Context) (*models.CompanyConfig, error) {
	query := `SELECT id, company_name, tax_id, address, phone, email, website, logo_backend, logo_key,
	                 primary_color, secondary_color, active, updated_at
	          FROM company_config WHERE active = 1 ORDER BY updated_at DESC, id DESC LIMIT 1`
	var c models.CompanyConfig
	err := db.QueryRowContext(ctx, query).Scan(
		&c.ID, &c.CompanyName, &c.TaxID, &c.Address, &c.Phone, &c.Email, &c.Website, &c.LogoBackend, &c.LogoKey,
		&c.PrimaryColor, &c.SecondaryColor, &c.Active, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company config: %w", err)
	}
	return &c, nil
}

// SaveCompanyConfig inserts a branding record, deactivating the previous ones when it is active.
func (db *DB) SaveCompanyConfig(ctx context.Context, c *models.CompanyConfig) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if c.Active {
		if _, err := tx.ExecContext(ctx, `UPDATE company_config SET active = 0 WHERE active = 1`); err != nil {
			return fmt.Errorf("failed to deactivate company configs: %w", err)
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `INSERT INTO company_config (
				company_name, tax_id, address, phone, email, website, logo_backend, logo_key,
				primary_color, secondary_color, active, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CompanyName, c.TaxID, c.Address, c.Phone, c.Email, c.Website, c.LogoBackend, c.LogoKey,
		c.PrimaryColor, c.SecondaryColor, c.Active, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save company config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit company config: %w", err)
	}
	c.ID = id
	c.UpdatedAt = now
	return nil
}
