// Package inspection issues public inspection links and serves the photo gallery behind them.
package inspection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentacar/internal/database"
	"rentacar/internal/domain"
	"rentacar/internal/metrics"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
)

const (
	DefaultLinkTTL = 30 * 24 * time.Hour
	tokenBytes     = 24
	mintAttempts   = 3
)

// Link is a public gallery URL for one booking.
type Link struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	Reused    bool      `json:"-"`
}

type Issuer struct {
	links   domain.LinkRepository
	baseURL string
	ttl     time.Duration
	now     func() time.Time
	token   func() (string, error)
	logger  *zerolog.Logger
}

func NewIssuer(links domain.LinkRepository, baseURL string, ttl time.Duration, logger *zerolog.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Issuer{
		links:   links,
		baseURL: strings.TrimRight(baseURL, "/"),
		ttl:     ttl,
		now:     time.Now,
		token:   newToken,
		logger:  logger,
	}
}

// Issue returns the booking's unexpired link with the latest expiry, minting a new one when none is left.
func (i *Issuer) Issue(ctx context.Context, bookingID int64) (*Link, error) {
	now := i.now()

	existing, err := i.links.FindValidInspectionLink(ctx, bookingID, now)
	switch {
	case err == nil:
		metrics.IncLink("reused")
		return i.link(existing, true), nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("find inspection link: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < mintAttempts; attempt++ {
		token, err := i.token()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		l := &models.InspectionLink{
			BookingID: bookingID,
			Token:     token,
			ExpiresAt: now.Add(i.ttl),
			CreatedAt: now,
		}
		if err := i.links.CreateInspectionLink(ctx, l); err != nil {
			lastErr = err
			i.logger.Warn().Err(err).Int64("booking_id", bookingID).Int("attempt", attempt+1).Msg("inspection link insert failed")
			continue
		}
		metrics.IncLink("minted")
		i.logger.Info().Int64("booking_id", bookingID).Time("expires_at", l.ExpiresAt).Msg("inspection link minted")
		return i.link(l, false), nil
	}
	return nil, fmt.Errorf("mint inspection link: %w", lastErr)
}

// URL composes the public gallery address for a token.
func (i *Issuer) URL(token string) string {
	return i.baseURL + "/inspeccion/" + token
}

func (i *Issuer) link(l *models.InspectionLink, reused bool) *Link {
	return &Link{Token: l.Token, URL: i.URL(l.Token), ExpiresAt: l.ExpiresAt, Reused: reused}
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
