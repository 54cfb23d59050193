package contract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rentacar/internal/database"
	"rentacar/internal/events"
	"rentacar/internal/inspection"
	"rentacar/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishJSON(eventType string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	db        *database.DB
	manager   *Manager
	publisher *recordingPublisher
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	renderer, err := NewRenderer("")
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		publisher: &recordingPublisher{},
		now:       time.Date(2025, 11, 14, 9, 0, 0, 0, time.UTC),
	}
	env.manager = NewManager(Deps{
		Bookings:    db,
		Contracts:   db,
		Inspections: db,
		Company:     db,
		Numbers:     NewNumberAllocator(db, time.UTC),
		Aggregator:  NewAggregator(nil, inspection.NewIssuer(db, "https://gestion.rentacar.es", 0, nil), AggregatorOptions{}, nil),
		Renderer:    renderer,
		Events:      env.publisher,
	}, Options{BaseVersion: 1}, nil)
	env.manager.now = func() time.Time { return env.now }
	return env
}

func (e *testEnv) seedBooking(t *testing.T, pickup time.Time) *models.BookingDetails {
	t.Helper()
	ctx := context.Background()

	customer := &models.Customer{FirstName: "Lucia", LastName: "Ortega", Email: "lucia@example.com", PreferredLanguage: "es"}
	require.NoError(t, e.db.CreateCustomer(ctx, customer))
	car := &models.Car{
		Registration: "REG-" + pickup.Format("20060102150405"),
		Brand:        "Seat",
		Model:        "Ibiza",
		DailyRate:    decimal.RequireFromString("45.50"),
	}
	require.NoError(t, e.db.CreateCar(ctx, car))

	details := &models.BookingDetails{
		Booking: models.Booking{
			CustomerID: customer.ID,
			CarID:      &car.ID,
			PickupDate: ptrTime(pickup),
			ReturnDate: ptrTime(pickup.Add(72 * time.Hour)),
		},
	}
	require.NoError(t, e.db.CreateBooking(ctx, details))
	return details
}

func (e *testEnv) historyCount(t *testing.T, contractID int64) int {
	t.Helper()
	n, err := e.db.CountContractHistory(context.Background(), contractID)
	require.NoError(t, err)
	return n
}

func TestManager_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	second := env.seedBooking(t, time.Date(2025, 11, 15, 14, 0, 0, 0, time.UTC))

	created, err := env.manager.Get(ctx, first.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, created.Outcome)
	assert.Equal(t, "202511150001", created.Contract.ContractNumber)
	assert.Equal(t, int64(1), created.Contract.Version)
	assert.False(t, created.Contract.IsSigned())
	assert.Contains(t, created.Contract.ContractText, "202511150001")
	assert.Contains(t, created.Contract.ContractText, "/inspeccion/")

	other, err := env.manager.Get(ctx, second.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "202511150002", other.Contract.ContractNumber)

	again, err := env.manager.Get(ctx, first.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again.Outcome)
	assert.Equal(t, int64(1), again.Contract.Version)

	env.now = time.Date(2025, 11, 15, 9, 45, 0, 0, time.UTC)
	signed, err := env.manager.Sign(ctx, first.Booking.ID, SignRequest{
		SignatureData: "data:image/png;base64,U0lH",
		IPAddress:     "10.0.0.8",
		UserAgent:     "Firefox",
		Actor:         "lucia@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSigned, signed.Outcome)
	assert.Equal(t, int64(2), signed.Contract.Version)
	require.NotNil(t, signed.Contract.SignedAt)
	signedAt := *signed.Contract.SignedAt
	assert.True(t, signedAt.Equal(env.now))
	assert.Contains(t, signed.Contract.ContractText, "10.0.0.8")

	require.NoError(t, env.db.CreateInspection(ctx, &models.Inspection{
		BookingID: first.Booking.ID,
		CarID:     *first.Booking.CarID,
		Type:      models.InspectionDelivery,
		Odometer:  12000,
		FuelLevel: "full",
		Photos:    []string{"insp/1.jpg", "insp/2.jpg"},
		CreatedAt: time.Date(2025, 11, 15, 10, 5, 0, 0, time.UTC),
	}))

	refreshed, err := env.manager.Get(ctx, first.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, refreshed.Outcome)
	assert.Equal(t, int64(3), refreshed.Contract.Version)
	require.NotNil(t, refreshed.Contract.SignedAt)
	assert.True(t, refreshed.Contract.SignedAt.Equal(signedAt))
	assert.Equal(t, signed.Contract.IPAddress, refreshed.Contract.IPAddress)
	assert.Equal(t, signed.Contract.SignatureData, refreshed.Contract.SignatureData)
	assert.Equal(t, signed.Contract.UserAgent, refreshed.Contract.UserAgent)
	assert.NotEqual(t, signed.Contract.ContractText, refreshed.Contract.ContractText)
	assert.Contains(t, refreshed.Contract.ContractText, "12000")

	// Reads with nothing new are idempotent.
	for range 2 {
		res, err := env.manager.Get(ctx, first.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnchanged, res.Outcome)
		assert.Equal(t, int64(3), res.Contract.Version)
		assert.Equal(t, refreshed.Contract.ContractText, res.Contract.ContractText)
	}

	// Only the signature went through the unsigned path; the refresh left no snapshot.
	assert.Equal(t, 1, env.historyCount(t, created.Contract.ID))

	assert.Equal(t, []string{
		"contract_created", "contract_created", "contract_signed", "contract_refreshed",
	}, env.publisher.types())
}

func TestManager_UnsignedRegenerationWritesHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	created, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)
	originalText := created.Contract.ContractText

	b := details.Booking
	b.ReturnDate = ptrTime(b.PickupDate.Add(96 * time.Hour))
	b.Notes = "Entrega en hotel"
	require.NoError(t, env.db.UpdateBooking(ctx, &b))

	res, err := env.manager.Regenerate(ctx, b.ID, models.ReasonManualUpdate, "ana")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRegenerated, res.Outcome)
	assert.Equal(t, int64(2), res.Contract.Version)
	assert.Equal(t, created.Contract.ContractNumber, res.Contract.ContractNumber)
	assert.Contains(t, res.Contract.ContractText, "Entrega en hotel")

	_, history, err := env.manager.History(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), history[0].Version)
	assert.Equal(t, originalText, history[0].ContractText)
	assert.Equal(t, models.ReasonManualUpdate, history[0].ChangeReason)
	assert.Equal(t, "ana", history[0].CreatedBy)

	// Same data renders the same text: nothing is written.
	res, err = env.manager.Regenerate(ctx, b.ID, models.ReasonManualUpdate, "ana")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, int64(2), res.Contract.Version)
	assert.Equal(t, 1, env.historyCount(t, res.Contract.ID))
}

func TestManager_VersionsOnlyIncrease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	res, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)

	last := res.Contract.Version
	b := details.Booking
	for i := 1; i <= 4; i++ {
		b.Notes = "cambio " + string(rune('0'+i))
		require.NoError(t, env.db.UpdateBooking(ctx, &b))

		res, err = env.manager.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Greater(t, res.Contract.Version, last)
		last = res.Contract.Version
	}
	assert.Equal(t, int64(5), last)
	assert.Equal(t, 4, env.historyCount(t, res.Contract.ID))
}

func TestManager_SignedIgnoresPlainEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	signed, err := env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.NoError(t, err)
	// Created and signed in one call.
	assert.Equal(t, int64(2), signed.Contract.Version)
	assert.Nil(t, signed.Contract.IPAddress)

	b := details.Booking
	b.Notes = "Cliente pide silla infantil"
	require.NoError(t, env.db.UpdateBooking(ctx, &b))

	res, err := env.manager.Regenerate(ctx, b.ID, models.ReasonBookingUpdated, "ana")
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, signed.Contract.ContractText, res.Contract.ContractText)
	assert.Equal(t, int64(2), res.Contract.Version)
}

// Newer inspections are measured against the contract's creation, so once one exists every
// booking edit reaches the signed text on the next read.
func TestManager_SignedRefreshCarriesLaterEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	signed, err := env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), signed.Contract.Version)

	require.NoError(t, env.db.CreateInspection(ctx, &models.Inspection{
		BookingID: details.Booking.ID,
		CarID:     *details.Booking.CarID,
		Type:      models.InspectionDelivery,
		Odometer:  8800,
		CreatedAt: env.now.Add(time.Hour),
	}))

	refreshed, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, refreshed.Outcome)
	assert.Equal(t, int64(3), refreshed.Contract.Version)

	b := details.Booking
	b.Notes = "Cliente pide silla infantil"
	require.NoError(t, env.db.UpdateBooking(ctx, &b))

	res, err := env.manager.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, res.Outcome)
	assert.Equal(t, int64(4), res.Contract.Version)
	assert.Contains(t, res.Contract.ContractText, "Cliente pide silla infantil")
	require.NotNil(t, res.Contract.SignedAt)
	assert.True(t, res.Contract.SignedAt.Equal(*signed.Contract.SignedAt))
	assert.Equal(t, 1, env.historyCount(t, res.Contract.ID))
}

func TestManager_InspectionBeforeContractDoesNotRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, env.db.CreateInspection(ctx, &models.Inspection{
		BookingID: details.Booking.ID,
		CarID:     *details.Booking.CarID,
		Type:      models.InspectionDelivery,
		CreatedAt: env.now.Add(-time.Hour),
	}))

	_, err := env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.NoError(t, err)

	res, err := env.manager.Refresh(ctx, details.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
}

func TestManager_SubscribeRefreshesOnInspection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bus := events.NewEventBus()
	var busErrs []error
	bus.OnError(func(_ *events.Event, err error) { busErrs = append(busErrs, err) })
	env.manager.Subscribe(bus)

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	_, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)
	_, err = env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.NoError(t, err)

	in := &models.Inspection{
		BookingID: details.Booking.ID,
		CarID:     *details.Booking.CarID,
		Type:      models.InspectionReturn,
		Odometer:  15321,
		CreatedAt: env.now.Add(2 * time.Hour),
	}
	require.NoError(t, env.db.CreateInspection(ctx, in))
	require.NoError(t, bus.PublishJSON(events.EventInspectionRecorded, events.InspectionEventPayload{
		InspectionID: in.ID,
		BookingID:    in.BookingID,
		Type:         in.Type,
		CreatedAt:    in.CreatedAt,
	}))
	assert.Empty(t, busErrs)

	c, err := env.db.GetContractByBooking(ctx, details.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.Version)
	assert.Contains(t, c.ContractText, "15321")

	t.Run("NoContractYet", func(t *testing.T) {
		other := env.seedBooking(t, time.Date(2025, 11, 16, 10, 0, 0, 0, time.UTC))
		require.NoError(t, bus.PublishJSON(events.EventInspectionRecorded, events.InspectionEventPayload{BookingID: other.Booking.ID}))
		assert.Empty(t, busErrs)

		_, err := env.db.GetContractByBooking(ctx, other.Booking.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestManager_SignErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))

	_, err := env.manager.Sign(ctx, details.Booking.ID, SignRequest{})
	assert.ErrorIs(t, err, ErrMissingSignature)

	_, err = env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,QQ=="})
	require.NoError(t, err)

	_, err = env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,Qg=="})
	assert.ErrorIs(t, err, ErrAlreadySigned)

	_, err = env.manager.Sign(ctx, 9999, SignRequest{SignatureData: "x"})
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestManager_RequiredData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Get(ctx, 404)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	pickup := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	orphan := &models.BookingDetails{Booking: models.Booking{PickupDate: &pickup}}
	require.NoError(t, env.db.CreateBooking(ctx, orphan))
	_, err = env.manager.Get(ctx, orphan.Booking.ID)
	assert.ErrorIs(t, err, ErrMissingCustomer)

	customer := &models.Customer{FirstName: "Sin", LastName: "Fecha"}
	require.NoError(t, env.db.CreateCustomer(ctx, customer))
	undated := &models.BookingDetails{Booking: models.Booking{CustomerID: customer.ID}}
	require.NoError(t, env.db.CreateBooking(ctx, undated))
	_, err = env.manager.Get(ctx, undated.Booking.ID)
	assert.ErrorIs(t, err, ErrMissingPickupDate)

	for _, id := range []int64{orphan.Booking.ID, undated.Booking.ID} {
		_, err := env.db.GetContractByBooking(ctx, id)
		assert.ErrorIs(t, err, database.ErrNotFound)
	}

	_, _, err = env.manager.History(ctx, orphan.Booking.ID)
	assert.ErrorIs(t, err, ErrContractNotFound)
	assert.Empty(t, env.publisher.types())
}

// racingContracts lets another writer bump the version right before the manager's first write.
type racingContracts struct {
	*database.DB
	races int
}

func (r *racingContracts) UpdateContractWithVersion(ctx context.Context, upd models.ContractUpdate) (*models.Contract, error) {
	if r.races > 0 {
		r.races--
		_, err := r.DB.UpdateContractWithVersion(ctx, models.ContractUpdate{
			ContractID:   upd.ContractID,
			FromVersion:  upd.FromVersion,
			ContractText: "written elsewhere",
			History:      &models.ContractHistory{ContractText: "lost", ChangeReason: "race", CreatedBy: "other"},
		})
		if err != nil {
			return nil, err
		}
	}
	return r.DB.UpdateContractWithVersion(ctx, upd)
}

func TestManager_RetriesOnVersionConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	_, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)

	racing := &racingContracts{DB: env.db, races: 1}
	env.manager.deps.Contracts = racing

	res, err := env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSigned, res.Outcome)
	assert.Equal(t, int64(3), res.Contract.Version)

	_, history, err := env.manager.History(ctx, details.Booking.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "written elsewhere", history[0].ContractText)
	assert.Equal(t, models.ReasonSignature, history[0].ChangeReason)
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	_, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)

	env.manager.deps.Contracts = &racingContracts{DB: env.db, races: 10}
	_, err = env.manager.Sign(ctx, details.Booking.ID, SignRequest{SignatureData: "data:image/png;base64,U0lH"})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrConcurrentModification)
}

// staleReads hides the existing contract once, as if it was created between our read and insert.
type staleReads struct {
	*database.DB
	hide bool
}

func (s *staleReads) GetContractByBooking(ctx context.Context, bookingID int64) (*models.Contract, error) {
	if s.hide {
		s.hide = false
		return nil, database.ErrNotFound
	}
	return s.DB.GetContractByBooking(ctx, bookingID)
}

func TestManager_ConcurrentCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	first, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)

	env.manager.deps.Contracts = &staleReads{DB: env.db, hide: true}
	res, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, first.Contract.ID, res.Contract.ID)
}

type failingCompany struct{}

func (failingCompany) GetActiveCompanyConfig(context.Context) (*models.CompanyConfig, error) {
	return nil, errors.New("company table locked")
}

func TestManager_CompanyBranding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.db.SaveCompanyConfig(ctx, &models.CompanyConfig{
		CompanyName:  "Rentacar Sur S.L.",
		TaxID:        "B12345678",
		LogoKey:      "logo.png",
		PrimaryColor: "#003366",
		Active:       true,
	}))

	details := env.seedBooking(t, time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC))
	res, err := env.manager.Get(ctx, details.Booking.ID)
	require.NoError(t, err)
	assert.Contains(t, res.Contract.ContractText, "Rentacar Sur S.L.")
	assert.Contains(t, res.Contract.ContractText, "#003366")

	env.manager.deps.Company = failingCompany{}
	other := env.seedBooking(t, time.Date(2025, 11, 16, 10, 0, 0, 0, time.UTC))
	res, err = env.manager.Get(ctx, other.Booking.ID)
	require.NoError(t, err)
	assert.NotContains(t, res.Contract.ContractText, "Rentacar Sur S.L.")
}
