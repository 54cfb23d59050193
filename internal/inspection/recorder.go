package inspection

import (
	"context"
	"errors"
	"fmt"

	"rentacar/internal/database"
	"rentacar/internal/domain"
	"rentacar/internal/events"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidInspection   = errors.New("invalid inspection")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrDuplicateInspection = errors.New("inspection already recorded")
)

// Recorder stores inspections and announces them so contracts can be refreshed.
type Recorder struct {
	bookings    domain.BookingRepository
	inspections domain.InspectionRepository
	events      domain.EventPublisher
	logger      *zerolog.Logger
}

func NewRecorder(
	bookings domain.BookingRepository,
	inspections domain.InspectionRepository,
	publisher domain.EventPublisher,
	logger *zerolog.Logger,
) *Recorder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Recorder{bookings: bookings, inspections: inspections, events: publisher, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, in *models.Inspection) error {
	if !models.ValidInspectionType(in.Type) {
		return fmt.Errorf("%w: type must be %s or %s", ErrInvalidInspection, models.InspectionDelivery, models.InspectionReturn)
	}
	if len(in.Photos) > models.MaxInspectionPhotos {
		return fmt.Errorf("%w: at most %d photos", ErrInvalidInspection, models.MaxInspectionPhotos)
	}

	details, err := r.bookings.GetBookingDetails(ctx, in.BookingID)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %d", ErrBookingNotFound, in.BookingID)
	}
	if err != nil {
		return fmt.Errorf("load booking %d: %w", in.BookingID, err)
	}
	if !hasVehicle(details, in.CarID) {
		return fmt.Errorf("%w: car %d is not part of booking %d", ErrInvalidInspection, in.CarID, in.BookingID)
	}

	if err := r.inspections.CreateInspection(ctx, in); err != nil {
		if errors.Is(err, database.ErrDuplicateInspection) {
			return fmt.Errorf("%w: %s of car %d on booking %d", ErrDuplicateInspection, in.Type, in.CarID, in.BookingID)
		}
		return err
	}

	if r.events != nil {
		payload := events.InspectionEventPayload{
			InspectionID: in.ID,
			BookingID:    in.BookingID,
			Type:         in.Type,
			CreatedAt:    in.CreatedAt,
		}
		if err := r.events.PublishJSON(events.EventInspectionRecorded, payload); err != nil {
			r.logger.Error().Err(err).Int64("booking_id", in.BookingID).Msg("failed to publish inspection event")
		}
	}
	return nil
}

func hasVehicle(details *models.BookingDetails, carID int64) bool {
	if details.Booking.CarID != nil && *details.Booking.CarID == carID {
		return true
	}
	for _, v := range details.Vehicles {
		if v.CarID == carID {
			return true
		}
	}
	return false
}
