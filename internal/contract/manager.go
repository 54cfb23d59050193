package contract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentacar/internal/database"
	"rentacar/internal/domain"
	"rentacar/internal/events"
	"rentacar/internal/logging"
	"rentacar/internal/metrics"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
)

type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeRegenerated Outcome = "regenerated"
	OutcomeRefreshed   Outcome = "refreshed"
	OutcomeSigned      Outcome = "signed"
	OutcomeUnchanged   Outcome = "unchanged"
)

const (
	SystemActor = "system"

	defaultMaxAttempts = 3
	refreshTimeout     = 30 * time.Second
)

type Deps struct {
	Bookings    domain.BookingRepository
	Contracts   domain.ContractRepository
	Inspections domain.InspectionRepository
	Company     domain.CompanyRepository
	Numbers     *NumberAllocator
	Aggregator  *Aggregator
	Renderer    *Renderer
	Events      domain.EventPublisher
}

type Options struct {
	BaseVersion int64
	MaxAttempts int
}

// Result is a contract together with the booking it was rendered from.
type Result struct {
	Contract *models.Contract
	Booking  *models.BookingDetails
	Outcome  Outcome
}

type SignRequest struct {
	SignatureData string
	IPAddress     string
	UserAgent     string
	Language      string
	Actor         string
}

// Manager owns the contract row of each booking: it creates it lazily, re-renders it when the
// booking or its inspections change, and signs it. Every write goes through a version check;
// a lost race reloads and re-evaluates.
type Manager struct {
	deps        Deps
	baseVersion int64
	maxAttempts int
	now         func() time.Time
	logger      *zerolog.Logger
}

func NewManager(deps Deps, opts Options, logger *zerolog.Logger) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseVersion <= 0 {
		opts.BaseVersion = 1
	}
	return &Manager{
		deps:        deps,
		baseVersion: opts.BaseVersion,
		maxAttempts: opts.MaxAttempts,
		now:         time.Now,
		logger:      logging.Component(logger, "contracts"),
	}
}

// Get returns the booking's contract, creating it on first access and re-rendering it when it is
// unsigned or when inspections newer than the contract exist.
func (m *Manager) Get(ctx context.Context, bookingID int64) (*Result, error) {
	return m.Regenerate(ctx, bookingID, models.ReasonBookingUpdated, SystemActor)
}

// Regenerate is Get with an explicit history reason and actor.
func (m *Manager) Regenerate(ctx context.Context, bookingID int64, reason, actor string) (*Result, error) {
	return m.retry(ctx, func() (*Result, error) {
		return m.sync(ctx, bookingID, reason, actor)
	})
}

// Refresh runs after an inspection is recorded.
func (m *Manager) Refresh(ctx context.Context, bookingID int64) (*Result, error) {
	return m.Regenerate(ctx, bookingID, models.ReasonInspectionAdded, SystemActor)
}

// Subscribe refreshes existing contracts when an inspection is recorded for their booking.
func (m *Manager) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventInspectionRecorded, m.onInspectionRecorded)
}

func (m *Manager) onInspectionRecorded(e *events.Event) error {
	var p events.InspectionEventPayload
	if err := e.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := m.deps.Contracts.GetContractByBooking(ctx, p.BookingID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	res, err := m.Refresh(ctx, p.BookingID)
	if err != nil {
		return fmt.Errorf("refresh contract of booking %d: %w", p.BookingID, err)
	}
	m.logger.Debug().Int64("booking_id", p.BookingID).Str("outcome", string(res.Outcome)).Msg("contract refreshed after inspection")
	return nil
}

func (m *Manager) Sign(ctx context.Context, bookingID int64, req SignRequest) (*Result, error) {
	if req.SignatureData == "" {
		return nil, ErrMissingSignature
	}
	if req.Actor == "" {
		req.Actor = SystemActor
	}
	return m.retry(ctx, func() (*Result, error) {
		return m.sign(ctx, bookingID, req)
	})
}

// History lists the superseded texts of the booking's contract, newest first.
func (m *Manager) History(ctx context.Context, bookingID int64) (*models.Contract, []models.ContractHistory, error) {
	c, err := m.deps.Contracts.GetContractByBooking(ctx, bookingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrContractNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	history, err := m.deps.Contracts.ListContractHistory(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, history, nil
}

func (m *Manager) retry(ctx context.Context, fn func() (*Result, error)) (*Result, error) {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		var res *Result
		res, err = fn()
		if err == nil {
			metrics.IncContractOp(string(res.Outcome))
			return res, nil
		}
		if !errors.Is(err, database.ErrConcurrentModification) && !errors.Is(err, database.ErrDuplicateContract) {
			return nil, err
		}
		metrics.IncContractOp("conflict")
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("contract write conflict, reloading")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, fmt.Errorf("contract write failed after %d attempts: %w", m.maxAttempts, err)
}

func (m *Manager) load(ctx context.Context, bookingID int64) (*models.BookingDetails, *models.Contract, error) {
	details, err := m.deps.Bookings.GetBookingDetails(ctx, bookingID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	if details.Customer == nil {
		return nil, nil, ErrMissingCustomer
	}
	if details.Booking.PickupDate == nil || details.Booking.PickupDate.IsZero() {
		return nil, nil, ErrMissingPickupDate
	}

	existing, err := m.deps.Contracts.GetContractByBooking(ctx, bookingID)
	if errors.Is(err, database.ErrNotFound) {
		return details, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load contract for booking %d: %w", bookingID, err)
	}
	return details, existing, nil
}

func (m *Manager) sync(ctx context.Context, bookingID int64, reason, actor string) (*Result, error) {
	details, existing, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return m.create(ctx, details, actor)
	}
	if !existing.IsSigned() {
		return m.regenerateUnsigned(ctx, details, existing, reason, actor)
	}

	// Compared with creation, not the last refresh.
	newer, err := m.deps.Inspections.HasInspectionsAfter(ctx, bookingID, existing.CreatedAt)
	if err != nil {
		return nil, err
	}
	if !newer {
		return &Result{Contract: existing, Booking: details, Outcome: OutcomeUnchanged}, nil
	}
	return m.refreshSigned(ctx, details, existing, actor)
}

func (m *Manager) create(ctx context.Context, details *models.BookingDetails, actor string) (*Result, error) {
	b := details.Booking
	number, err := m.deps.Numbers.Allocate(ctx, b.ID, b.PickupDate)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	text, data, err := m.render(ctx, details, number, now, nil, "")
	if err != nil {
		return nil, err
	}

	c := &models.Contract{
		BookingID:      b.ID,
		ContractNumber: number,
		ContractText:   text,
		Version:        m.baseVersion,
		CreatedAt:      now,
	}
	if err := m.deps.Contracts.CreateContract(ctx, c); err != nil {
		return nil, err
	}

	m.logger.Info().Int64("booking_id", b.ID).Str("contract_number", number).Msg("contract created")
	m.publish(events.EventContractCreated, c, data, "", actor)
	return &Result{Contract: c, Booking: details, Outcome: OutcomeCreated}, nil
}

func (m *Manager) regenerateUnsigned(ctx context.Context, details *models.BookingDetails, existing *models.Contract, reason, actor string) (*Result, error) {
	text, data, err := m.render(ctx, details, existing.ContractNumber, existing.CreatedAt, nil, "")
	if err != nil {
		return nil, err
	}
	if text == existing.ContractText {
		return &Result{Contract: existing, Booking: details, Outcome: OutcomeUnchanged}, nil
	}

	updated, err := m.deps.Contracts.UpdateContractWithVersion(ctx, models.ContractUpdate{
		ContractID:   existing.ID,
		FromVersion:  existing.Version,
		ContractText: text,
		History: &models.ContractHistory{
			ContractText: existing.ContractText,
			ChangeReason: reason,
			CreatedBy:    actor,
		},
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().Int64("booking_id", existing.BookingID).Int64("version", updated.Version).Str("reason", reason).Msg("contract regenerated")
	m.publish(events.EventContractRegenerated, updated, data, reason, actor)
	return &Result{Contract: updated, Booking: details, Outcome: OutcomeRegenerated}, nil
}

// refreshSigned re-renders a signed contract with the stored signature. No history is written.
func (m *Manager) refreshSigned(ctx context.Context, details *models.BookingDetails, existing *models.Contract, actor string) (*Result, error) {
	sig := storedSignature(existing)
	text, data, err := m.render(ctx, details, existing.ContractNumber, existing.CreatedAt, sig, "")
	if err != nil {
		return nil, err
	}
	if text == existing.ContractText {
		return &Result{Contract: existing, Booking: details, Outcome: OutcomeUnchanged}, nil
	}

	updated, err := m.deps.Contracts.UpdateContractWithVersion(ctx, models.ContractUpdate{
		ContractID:    existing.ID,
		FromVersion:   existing.Version,
		ContractText:  text,
		SignedAt:      existing.SignedAt,
		SignatureData: existing.SignatureData,
		IPAddress:     existing.IPAddress,
		UserAgent:     existing.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().Int64("booking_id", existing.BookingID).Int64("version", updated.Version).Msg("signed contract refreshed")
	m.publish(events.EventContractRefreshed, updated, data, models.ReasonInspectionAdded, actor)
	return &Result{Contract: updated, Booking: details, Outcome: OutcomeRefreshed}, nil
}

func (m *Manager) sign(ctx context.Context, bookingID int64, req SignRequest) (*Result, error) {
	details, existing, err := m.load(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		created, err := m.create(ctx, details, req.Actor)
		if err != nil {
			return nil, err
		}
		metrics.IncContractOp(string(OutcomeCreated))
		existing = created.Contract
	}
	if existing.IsSigned() {
		return nil, ErrAlreadySigned
	}

	signedAt := m.now().UTC()
	sig := &Signature{
		SignedAt:  signedAt,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Image:     req.SignatureData,
	}
	text, data, err := m.render(ctx, details, existing.ContractNumber, existing.CreatedAt, sig, req.Language)
	if err != nil {
		return nil, err
	}

	updated, err := m.deps.Contracts.UpdateContractWithVersion(ctx, models.ContractUpdate{
		ContractID:    existing.ID,
		FromVersion:   existing.Version,
		ContractText:  text,
		SignedAt:      &signedAt,
		SignatureData: &req.SignatureData,
		IPAddress:     optional(req.IPAddress),
		UserAgent:     optional(req.UserAgent),
		History: &models.ContractHistory{
			ContractText: existing.ContractText,
			ChangeReason: models.ReasonSignature,
			CreatedBy:    req.Actor,
		},
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().Int64("booking_id", bookingID).Int64("version", updated.Version).Str("ip", req.IPAddress).Msg("contract signed")
	m.publish(events.EventContractSigned, updated, data, models.ReasonSignature, req.Actor)
	return &Result{Contract: updated, Booking: details, Outcome: OutcomeSigned}, nil
}

func (m *Manager) render(ctx context.Context, details *models.BookingDetails, number string, issuedAt time.Time, sig *Signature, lang string) (string, *Data, error) {
	inspections, err := m.deps.Inspections.ListInspections(ctx, details.Booking.ID)
	if err != nil {
		return "", nil, err
	}

	data, err := m.deps.Aggregator.Aggregate(ctx, Input{
		Details:        details,
		Company:        m.company(ctx),
		ContractNumber: number,
		IssuedAt:       issuedAt,
		Inspections:    inspections,
		Signature:      sig,
		Language:       lang,
	})
	if err != nil {
		return "", nil, err
	}

	text, err := m.deps.Renderer.Render(data)
	if err != nil {
		return "", nil, err
	}
	return text, data, nil
}

func (m *Manager) company(ctx context.Context) *models.CompanyConfig {
	if m.deps.Company == nil {
		return nil
	}
	c, err := m.deps.Company.GetActiveCompanyConfig(ctx)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			m.logger.Warn().Err(err).Msg("company config unavailable")
		}
		return nil
	}
	return c
}

func (m *Manager) publish(eventType string, c *models.Contract, data *Data, reason, actor string) {
	if m.deps.Events == nil {
		return
	}
	payload := events.ContractEventPayload{
		ContractID:     c.ID,
		BookingID:      c.BookingID,
		ContractNumber: c.ContractNumber,
		Version:        c.Version,
		Reason:         reason,
		SignedAt:       c.SignedAt,
		ChangedBy:      actor,
	}
	if data != nil {
		payload.CustomerName = data.Customer.FullName
		payload.CustomerEmail = data.Customer.Email
		payload.Language = data.Language
	}
	if err := m.deps.Events.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", c.BookingID).Msg("publish event error")
	}
}

func storedSignature(c *models.Contract) *Signature {
	sig := &Signature{SignedAt: *c.SignedAt}
	if c.IPAddress != nil {
		sig.IPAddress = *c.IPAddress
	}
	if c.UserAgent != nil {
		sig.UserAgent = *c.UserAgent
	}
	if c.SignatureData != nil {
		sig.Image = *c.SignatureData
	}
	return sig
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
