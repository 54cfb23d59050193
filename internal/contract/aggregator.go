package contract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"rentacar/internal/inspection"
	"rentacar/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultTaxRate  = 0.21
	DefaultLanguage = models.LanguageSpanish

	dateLayout = "02/01/2006"
	timeLayout = "15:04"
)

var (
	hexColor     = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)
	defaultColor = map[string]string{"primary": "#1f3a5f", "secondary": "#e8eef5"}
)

type LogoResolver interface {
	InlineImage(ctx context.Context, backend, key string) (string, error)
}

type LinkIssuer interface {
	Issue(ctx context.Context, bookingID int64) (*inspection.Link, error)
}

// Signature carries the signing metadata printed on a signed contract.
type Signature struct {
	SignedAt  time.Time
	IPAddress string
	UserAgent string
	Image     string
}

// Input is everything one contract rendering depends on.
type Input struct {
	Details        *models.BookingDetails
	Company        *models.CompanyConfig
	ContractNumber string
	IssuedAt       time.Time
	Inspections    []models.Inspection
	Signature      *Signature
	Language       string
}

type CompanyInfo struct {
	Name           string
	TaxID          string
	Address        string
	Phone          string
	Email          string
	Website        string
	Logo           string
	PrimaryColor   string
	SecondaryColor string
}

type CustomerInfo struct {
	FullName       string
	Email          string
	Phone          string
	DocumentType   string
	DocumentNumber string
	LicenseNumber  string
	Address        string
	City           string
	PostalCode     string
	Country        string
	Nationality    string
	BirthDate      string
}

type RentalInfo struct {
	PickupDate     string
	PickupTime     string
	ReturnDate     string
	ReturnTime     string
	PickupLocation string
	ReturnLocation string
	Days           int
	Notes          string
}

type VehicleLine struct {
	Description  string
	Registration string
	Color        string
	FuelType     string
	Days         int
	PricePerDay  decimal.Decimal
	Total        decimal.Decimal
}

type DriverLine struct {
	FullName       string
	DocumentType   string
	DocumentNumber string
	LicenseNumber  string
	BirthDate      string
	Fee            decimal.Decimal
}

// ChargeLine is an extra or an upgrade.
type ChargeLine struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	PerDay    bool
	Total     decimal.Decimal
}

type Totals struct {
	Total    decimal.Decimal
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	TaxRate  decimal.Decimal
}

type InspectionLine struct {
	Type       string
	Date       string
	Time       string
	Odometer   int64
	FuelLevel  string
	Notes      string
	PhotoCount int
}

type SignatureInfo struct {
	Date      string
	Time      string
	IPAddress string
	UserAgent string
	Image     string
}

// Data is the flat value the renderer consumes.
type Data struct {
	Language       string
	ContractNumber string
	ContractDate   string
	BookingID      int64
	Company        CompanyInfo
	Customer       CustomerInfo
	Rental         RentalInfo
	Vehicles       []VehicleLine
	Drivers        []DriverLine
	Extras         []ChargeLine
	Upgrades       []ChargeLine
	Totals         Totals
	InspectionURL  string
	Inspections    []InspectionLine
	Signature      *SignatureInfo
}

type AggregatorOptions struct {
	TaxRate         float64
	DefaultLanguage string
	Location        *time.Location
}

// Aggregator flattens a loaded booking into renderer input. Logo and inspection link are
// optional enrichments: their failures are logged and the field is left empty.
type Aggregator struct {
	logos           LogoResolver
	links           LinkIssuer
	taxRate         decimal.Decimal
	defaultLanguage string
	loc             *time.Location
	logger          *zerolog.Logger
}

func NewAggregator(logos LogoResolver, links LinkIssuer, opts AggregatorOptions, logger *zerolog.Logger) *Aggregator {
	rate := opts.TaxRate
	if rate <= 0 {
		rate = DefaultTaxRate
	}
	lang := normalizeLanguage(opts.DefaultLanguage)
	if !SupportedLanguage(lang) {
		lang = DefaultLanguage
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Aggregator{
		logos:           logos,
		links:           links,
		taxRate:         decimal.NewFromFloat(rate),
		defaultLanguage: lang,
		loc:             loc,
		logger:          logger,
	}
}

func (a *Aggregator) Aggregate(ctx context.Context, in Input) (*Data, error) {
	d := in.Details
	if d == nil {
		return nil, ErrBookingNotFound
	}
	if d.Customer == nil {
		return nil, ErrMissingCustomer
	}

	b := d.Booking
	days := RentalDays(b.PickupDate, b.ReturnDate)

	data := &Data{
		Language:       a.resolveLanguage(in.Language, d.Customer.PreferredLanguage),
		ContractNumber: in.ContractNumber,
		ContractDate:   a.formatDate(&in.IssuedAt),
		BookingID:      b.ID,
		Company:        a.company(ctx, in.Company),
		Customer:       a.customer(d.Customer),
		Rental: RentalInfo{
			PickupDate:     a.formatDate(b.PickupDate),
			PickupTime:     a.formatTime(b.PickupDate),
			ReturnDate:     a.formatDate(b.ReturnDate),
			ReturnTime:     a.formatTime(b.ReturnDate),
			PickupLocation: b.PickupLocation,
			ReturnLocation: b.ReturnLocation,
			Days:           days,
			Notes:          b.Notes,
		},
		Vehicles: vehicleLines(d, days),
		Drivers:  a.driverLines(d.Drivers),
		Extras:   extraLines(d.Extras, days),
		Upgrades: upgradeLines(d.Upgrades, days),
	}

	data.Totals = a.totals(data)
	data.InspectionURL = a.inspectionURL(ctx, b.ID)
	data.Inspections = a.inspectionLines(in.Inspections)

	if s := in.Signature; s != nil {
		data.Signature = &SignatureInfo{
			Date:      a.formatDate(&s.SignedAt),
			Time:      a.formatTime(&s.SignedAt),
			IPAddress: s.IPAddress,
			UserAgent: s.UserAgent,
			Image:     s.Image,
		}
	}

	return data, nil
}

// RentalDays is the rental length in started days, never less than one.
func RentalDays(pickup, ret *time.Time) int {
	if pickup == nil || ret == nil {
		return 1
	}
	const day = 24 * time.Hour
	diff := ret.Sub(*pickup)
	if diff <= 0 {
		return 1
	}
	days := int((diff + day - 1) / day)
	return max(days, 1)
}

func (a *Aggregator) resolveLanguage(override, preferred string) string {
	for _, candidate := range []string{override, preferred} {
		lang := normalizeLanguage(candidate)
		if lang != "" && SupportedLanguage(lang) {
			return lang
		}
	}
	return a.defaultLanguage
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

func (a *Aggregator) company(ctx context.Context, c *models.CompanyConfig) CompanyInfo {
	info := CompanyInfo{
		PrimaryColor:   defaultColor["primary"],
		SecondaryColor: defaultColor["secondary"],
	}
	if c == nil {
		return info
	}
	info.Name = c.CompanyName
	info.TaxID = c.TaxID
	info.Address = c.Address
	info.Phone = c.Phone
	info.Email = c.Email
	info.Website = c.Website
	if hexColor.MatchString(c.PrimaryColor) {
		info.PrimaryColor = c.PrimaryColor
	}
	if hexColor.MatchString(c.SecondaryColor) {
		info.SecondaryColor = c.SecondaryColor
	}

	if c.HasLogo() && a.logos != nil {
		backend := c.LogoBackend
		if backend == "" {
			backend = models.AssetBackendLocal
		}
		logo, err := a.logos.InlineImage(ctx, backend, c.LogoKey)
		if err != nil {
			a.logger.Warn().Err(err).Str("backend", backend).Str("key", c.LogoKey).Msg("company logo unavailable")
		} else {
			info.Logo = logo
		}
	}
	return info
}

func (a *Aggregator) customer(c *models.Customer) CustomerInfo {
	return CustomerInfo{
		FullName:       c.FullName(),
		Email:          c.Email,
		Phone:          c.Phone,
		DocumentType:   c.DocumentType,
		DocumentNumber: c.DocumentNumber,
		LicenseNumber:  c.LicenseNumber,
		Address:        c.Address,
		City:           c.City,
		PostalCode:     c.PostalCode,
		Country:        c.Country,
		Nationality:    c.Nationality,
		BirthDate:      a.formatDate(c.BirthDate),
	}
}

func vehicleLines(d *models.BookingDetails, days int) []VehicleLine {
	nDays := decimal.NewFromInt(int64(days))

	if d.IsMultiVehicle() {
		lines := make([]VehicleLine, 0, len(d.Vehicles))
		for _, v := range d.Vehicles {
			line := VehicleLine{
				Days:        days,
				Total:       v.Price,
				PricePerDay: v.Price.DivRound(nDays, 2),
			}
			if v.Car != nil {
				line.Description = v.Car.DisplayName()
				line.Registration = v.Car.Registration
				line.Color = v.Car.Color
				line.FuelType = v.Car.FuelType
			}
			lines = append(lines, line)
		}
		return lines
	}

	if d.Car == nil {
		return nil
	}
	return []VehicleLine{{
		Description:  d.Car.DisplayName(),
		Registration: d.Car.Registration,
		Color:        d.Car.Color,
		FuelType:     d.Car.FuelType,
		Days:         days,
		PricePerDay:  d.Car.DailyRate,
		Total:        d.Car.DailyRate.Mul(nDays),
	}}
}

func (a *Aggregator) driverLines(drivers []models.Driver) []DriverLine {
	lines := make([]DriverLine, 0, len(drivers))
	for _, dr := range drivers {
		lines = append(lines, DriverLine{
			FullName:       dr.FullName,
			DocumentType:   dr.DocumentType,
			DocumentNumber: dr.DocumentNumber,
			LicenseNumber:  dr.LicenseNumber,
			BirthDate:      a.formatDate(dr.BirthDate),
			Fee:            dr.Fee,
		})
	}
	return lines
}

func extraLines(extras []models.Extra, days int) []ChargeLine {
	lines := make([]ChargeLine, 0, len(extras))
	for _, e := range extras {
		qty := max(e.Quantity, 1)
		total := e.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
		if e.PerDay {
			total = total.Mul(decimal.NewFromInt(int64(days)))
		}
		lines = append(lines, ChargeLine{Name: e.Name, UnitPrice: e.UnitPrice, Quantity: qty, PerDay: e.PerDay, Total: total})
	}
	return lines
}

func upgradeLines(upgrades []models.Upgrade, days int) []ChargeLine {
	lines := make([]ChargeLine, 0, len(upgrades))
	for _, u := range upgrades {
		qty := max(u.Quantity, 1)
		total := u.PricePerDay.Mul(decimal.NewFromInt(int64(days))).Mul(decimal.NewFromInt(int64(qty)))
		lines = append(lines, ChargeLine{Name: u.Name, UnitPrice: u.PricePerDay, Quantity: qty, PerDay: true, Total: total})
	}
	return lines
}

// totals sums vehicles, extras and upgrades and splits out the included tax.
// Driver fees are listed on the contract but are not part of the total.
func (a *Aggregator) totals(d *Data) Totals {
	total := decimal.Zero
	for _, v := range d.Vehicles {
		total = total.Add(v.Total)
	}
	for _, e := range d.Extras {
		total = total.Add(e.Total)
	}
	for _, u := range d.Upgrades {
		total = total.Add(u.Total)
	}
	total = total.Round(2)

	subtotal := total.DivRound(decimal.NewFromInt(1).Add(a.taxRate), 2)
	return Totals{
		Total:    total,
		Subtotal: subtotal,
		Tax:      total.Sub(subtotal),
		TaxRate:  a.taxRate,
	}
}

func (a *Aggregator) inspectionURL(ctx context.Context, bookingID int64) string {
	if a.links == nil {
		return ""
	}
	link, err := a.links.Issue(ctx, bookingID)
	if err != nil {
		a.logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("inspection link unavailable")
		return ""
	}
	return link.URL
}

func (a *Aggregator) inspectionLines(list []models.Inspection) []InspectionLine {
	lines := make([]InspectionLine, 0, len(list))
	for _, in := range list {
		lines = append(lines, InspectionLine{
			Type:       in.Type,
			Date:       a.formatDate(&in.CreatedAt),
			Time:       a.formatTime(&in.CreatedAt),
			Odometer:   in.Odometer,
			FuelLevel:  in.FuelLevel,
			Notes:      in.Notes,
			PhotoCount: len(in.Photos),
		})
	}
	return lines
}

func (a *Aggregator) formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(a.loc).Format(dateLayout)
}

func (a *Aggregator) formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(a.loc).Format(timeLayout)
}
