package domain

import (
	"context"
	"time"

	"rentacar/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BookingRepository interface {
	GetBookingDetails(ctx context.Context, id int64) (*models.BookingDetails, error)
	ListPickupsBetween(ctx context.Context, from, to time.Time) ([]models.PickupStamp, error)
}

type ContractRepository interface {
	GetContractByBooking(ctx context.Context, bookingID int64) (*models.Contract, error)
	CreateContract(ctx context.Context, c *models.Contract) error
	UpdateContractWithVersion(ctx context.Context, upd models.ContractUpdate) (*models.Contract, error)
	ListContractHistory(ctx context.Context, contractID int64) ([]models.ContractHistory, error)
}

type InspectionRepository interface {
	CreateInspection(ctx context.Context, in *models.Inspection) error
	ListInspections(ctx context.Context, bookingID int64) ([]models.Inspection, error)
	HasInspectionsAfter(ctx context.Context, bookingID int64, t time.Time) (bool, error)
}

type LinkRepository interface {
	FindValidInspectionLink(ctx context.Context, bookingID int64, now time.Time) (*models.InspectionLink, error)
	CreateInspectionLink(ctx context.Context, l *models.InspectionLink) error
	GetInspectionLinkByToken(ctx context.Context, token string) (*models.InspectionLink, error)
}

type CompanyRepository interface {
	GetActiveCompanyConfig(ctx context.Context) (*models.CompanyConfig, error)
}

type RegisterRepository interface {
	ListContractRegister(ctx context.Context, from, to time.Time) ([]models.ContractRegisterEntry, error)
}

type AssetResolver interface {
	InlineImage(ctx context.Context, backend, key string) (string, error)
	PublicURLs(ctx context.Context, backend string, keys []string) ([]string, error)
	UploadBackend() string
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type EmailSender interface {
	SendSignedContract(ctx context.Context, to, name, subject, htmlBody string) error
}

type RegisterWriter interface {
	UpsertContract(ctx context.Context, entry models.ContractRegisterEntry) error
	ReplaceRegister(ctx context.Context, entries []models.ContractRegisterEntry) error
}

// RateLimiter counts calls per user in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}
