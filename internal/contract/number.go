package contract

import (
	"context"
	"fmt"
	"time"

	"rentacar/internal/models"
)

type PickupLister interface {
	ListPickupsBetween(ctx context.Context, from, to time.Time) ([]models.PickupStamp, error)
}

// NumberAllocator derives YYYYMMDD#### contract numbers from the pickup day and the
// booking's position among that day's pickups. It reads only; the number is persisted
// with the contract.
type NumberAllocator struct {
	pickups PickupLister
	loc     *time.Location
}

func NewNumberAllocator(pickups PickupLister, loc *time.Location) *NumberAllocator {
	if loc == nil {
		loc = time.UTC
	}
	return &NumberAllocator{pickups: pickups, loc: loc}
}

func (a *NumberAllocator) Allocate(ctx context.Context, bookingID int64, pickup *time.Time) (string, error) {
	if pickup == nil || pickup.IsZero() {
		return "", ErrMissingPickupDate
	}

	local := pickup.In(a.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, a.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sameDay, err := a.pickups.ListPickupsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return "", fmt.Errorf("list pickups for %s: %w", dayStart.Format(time.DateOnly), err)
	}

	return FormatNumber(dayStart, Rank(bookingID, *pickup, sameDay)), nil
}

// Rank is 1 + the number of bookings picked up strictly earlier, or at the same instant with a smaller id.
func Rank(bookingID int64, pickup time.Time, sameDay []models.PickupStamp) int {
	rank := 1
	for _, s := range sameDay {
		if s.BookingID == bookingID {
			continue
		}
		if s.PickupDate.Before(pickup) || (s.PickupDate.Equal(pickup) && s.BookingID < bookingID) {
			rank++
		}
	}
	return rank
}

func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("%s%04d", day.Format("20060102"), seq)
}
