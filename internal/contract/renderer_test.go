package contract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData(lang string) *Data {
	return &Data{
		Language:       lang,
		ContractNumber: "202511150001",
		ContractDate:   "14/11/2025",
		Company:        CompanyInfo{Name: "Rentacar Sur", PrimaryColor: "#1f3a5f", SecondaryColor: "#e8eef5"},
		Customer:       CustomerInfo{FullName: "Lucia <b>Ortega</b>", Email: "lucia@example.com"},
		Rental:         RentalInfo{PickupDate: "15/11/2025", PickupTime: "10:00", Days: 3},
		Vehicles: []VehicleLine{{
			Description: "Seat Ibiza", Registration: "1234ABC", Days: 3,
			PricePerDay: decimal.RequireFromString("45.5"), Total: decimal.RequireFromString("136.5"),
		}},
		Totals: Totals{
			Total:    decimal.RequireFromString("136.5"),
			Subtotal: decimal.RequireFromString("112.81"),
			Tax:      decimal.RequireFromString("23.69"),
			TaxRate:  decimal.RequireFromString("0.21"),
		},
	}
}

func TestRender(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	html, err := r.Render(sampleData("es"))
	require.NoError(t, err)

	assert.Contains(t, html, `<html lang="es">`)
	assert.Contains(t, html, "202511150001")
	assert.Contains(t, html, "Lucia &lt;b&gt;Ortega&lt;/b&gt;")
	assert.Contains(t, html, "136,50 €")
	assert.Contains(t, html, "45,50 €")
	assert.Contains(t, html, "(21%)")
	assert.Contains(t, html, LabelsFor("es").Unsigned)

	es := LabelsFor("es")
	assert.NotContains(t, html, "<h2>"+es.Drivers+"</h2>")
	assert.NotContains(t, html, "<h2>"+es.Extras+"</h2>")
	assert.NotContains(t, html, "<h2>"+es.Inspections+"</h2>")
}

func TestRender_English(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	data := sampleData("en")
	data.Drivers = []DriverLine{{FullName: "Pablo Ortega", Fee: decimal.NewFromInt(25)}}
	data.Extras = []ChargeLine{{Name: "GPS", UnitPrice: decimal.NewFromInt(5), Quantity: 1, PerDay: true, Total: decimal.NewFromInt(15)}}
	data.InspectionURL = "https://gestion.rentacar.es/inspeccion/abc"
	data.Inspections = []InspectionLine{{Type: "delivery", Date: "15/11/2025", Time: "10:05", Odometer: 12000, PhotoCount: 2}}

	html, err := r.Render(data)
	require.NoError(t, err)

	en := LabelsFor("en")
	assert.Contains(t, html, en.Title)
	assert.Contains(t, html, "136.50 €")
	assert.Contains(t, html, "<h2>"+en.Drivers+"</h2>")
	assert.Contains(t, html, "Pablo Ortega")
	assert.Contains(t, html, "GPS ("+en.PerDay+")")
	assert.Contains(t, html, `href="https://gestion.rentacar.es/inspeccion/abc"`)
	assert.Contains(t, html, "<td>Delivery</td>")
}

func TestRender_Images(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	data := sampleData("es")
	data.Company.Logo = "data:image/jpeg;base64,QUJD"
	data.Signature = &SignatureInfo{Date: "15/11/2025", Time: "09:45", IPAddress: "10.0.0.8", Image: "data:image/png;base64,REVG"}

	html, err := r.Render(data)
	require.NoError(t, err)
	assert.Contains(t, html, `src="data:image/jpeg;base64,QUJD"`)
	assert.Contains(t, html, `src="data:image/png;base64,REVG"`)
	assert.Contains(t, html, "10.0.0.8")
	assert.NotContains(t, html, LabelsFor("es").Unsigned)

	data.Company.Logo = "javascript:alert(1)"
	html, err = r.Render(data)
	require.NoError(t, err)
	assert.NotContains(t, html, "javascript:")
	assert.Contains(t, html, "#ZgotmplZ")
}

func TestRender_Deterministic(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	a, err := r.Render(sampleData("es"))
	require.NoError(t, err)
	b, err := r.Render(sampleData("es"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewRenderer_CustomTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.html")
	require.NoError(t, os.WriteFile(path, []byte(`<p>{{.L.Number}} {{.ContractNumber}} {{.Money .Totals.Total}}</p>`), 0o644))

	r, err := NewRenderer(path)
	require.NoError(t, err)
	html, err := r.Render(sampleData("en"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Contract no. 202511150001 136.50 €</p>", strings.TrimSpace(html))

	_, err = NewRenderer(filepath.Join(dir, "missing.html"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.html")
	require.NoError(t, os.WriteFile(bad, []byte(`{{if}}`), 0o644))
	_, err = NewRenderer(bad)
	assert.Error(t, err)

	_, err = r.Render(nil)
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "1234,50 €", formatMoney(decimal.RequireFromString("1234.5"), "es"))
	assert.Equal(t, "1234.50 €", formatMoney(decimal.RequireFromString("1234.5"), "en"))
	assert.Equal(t, "0,00 €", formatMoney(decimal.Zero, "es"))
}
