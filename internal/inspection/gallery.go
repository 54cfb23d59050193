package inspection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/database"
	"rentacar/internal/domain"

	"github.com/rs/zerolog"
)

var (
	ErrLinkNotFound = errors.New("inspection link not found")
	ErrLinkExpired  = errors.New("inspection link expired")
)

type PhotoSet struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Odometer  int64     `json:"odometer"`
	FuelLevel string    `json:"fuel_level"`
	Notes     string    `json:"notes"`
	Photos    []string  `json:"photos"`
}

type View struct {
	BookingID   int64      `json:"booking_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Inspections []PhotoSet `json:"inspections"`
}

// Gallery resolves a public token into the booking's inspections with fetchable photo URLs.
type Gallery struct {
	links       domain.LinkRepository
	inspections domain.InspectionRepository
	assets      domain.AssetResolver
	now         func() time.Time
	logger      *zerolog.Logger
}

func NewGallery(links domain.LinkRepository, inspections domain.InspectionRepository, assets domain.AssetResolver, logger *zerolog.Logger) *Gallery {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gallery{links: links, inspections: inspections, assets: assets, now: time.Now, logger: logger}
}

func (g *Gallery) Resolve(ctx context.Context, token string) (*View, error) {
	link, err := g.links.GetInspectionLinkByToken(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load inspection link: %w", err)
	}
	if link.Expired(g.now()) {
		return nil, ErrLinkExpired
	}

	list, err := g.inspections.ListInspections(ctx, link.BookingID)
	if err != nil {
		return nil, fmt.Errorf("list inspections: %w", err)
	}

	view := &View{BookingID: link.BookingID, ExpiresAt: link.ExpiresAt, Inspections: make([]PhotoSet, 0, len(list))}
	backend := g.assets.UploadBackend()
	for _, in := range list {
		set := PhotoSet{
			ID:        in.ID,
			Type:      in.Type,
			CreatedAt: in.CreatedAt,
			Odometer:  in.Odometer,
			FuelLevel: in.FuelLevel,
			Notes:     in.Notes,
			Photos:    []string{},
		}
		if len(in.Photos) > 0 {
			urls, err := g.assets.PublicURLs(ctx, backend, in.Photos)
			if err != nil {
				g.logger.Warn().Err(err).Int64("inspection_id", in.ID).Msg("failed to resolve inspection photos")
			} else {
				set.Photos = urls
			}
		}
		view.Inspections = append(view.Inspections, set)
	}
	return view, nil
}
