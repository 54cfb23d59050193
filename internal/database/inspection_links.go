package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/models"
)

// FindValidInspectionLink returns the unexpired link with the latest expiry, or ErrNotFound.
func (db *DB) FindValidInspectionLink(ctx context.Context, bookingID int64, now time.Time) (*models.InspectionLink, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, token, expires_at, created_at
	          FROM inspection_links WHERE booking_id = ?`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find inspection link: %w", err)
	}
	defer rows.Close()

	var best *models.InspectionLink
	for rows.Next() {
		var l models.InspectionLink
		if err := rows.Scan(&l.ID, &l.BookingID, &l.Token, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inspection link: %w", err)
		}
		if l.Expired(now) {
			continue
		}
		if best == nil || l.ExpiresAt.After(best.ExpiresAt) {
			link := l
			best = &link
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inspection links: %w", err)
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (db *DB) CreateInspectionLink(ctx context.Context, l *models.InspectionLink) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.ExpiresAt = l.ExpiresAt.UTC()

	result, err := db.ExecContext(ctx, `INSERT INTO inspection_links (booking_id, token, expires_at, created_at)
	          VALUES (?, ?, ?, ?)`, l.BookingID, l.Token, l.ExpiresAt, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create inspection link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	l.ID = id
	return nil
}

func (db *DB) GetInspectionLinkByToken(ctx context.Context, token string) (*models.InspectionLink, error) {
	var l models.InspectionLink
	err := db.QueryRowContext(ctx, `SELECT id, booking_id, token, expires_at, created_at
	          FROM inspection_links WHERE token = ?`, token).Scan(&l.ID, &l.BookingID, &l.Token, &l.ExpiresAt, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inspection link: %w", err)
	}
	return &l, nil
}

// PurgeInspectionLinksExpiredBefore deletes links whose expiry is older than cutoff.
func (db *DB) PurgeInspectionLinksExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM inspection_links WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge inspection links: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
