package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCustomerFullName(t *testing.T) {
	tests := []struct {
		name     string
		customer Customer
		want     string
	}{
		{"both", Customer{FirstName: "Lucia", LastName: "Garcia"}, "Lucia Garcia"},
		{"first only", Customer{FirstName: "Lucia"}, "Lucia"},
		{"last only", Customer{LastName: "Garcia"}, "Garcia"},
		{"empty", Customer{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.customer.FullName())
		})
	}
}

func TestCarDisplayName(t *testing.T) {
	assert.Equal(t, "Seat Ibiza", (&Car{Brand: "Seat", Model: "Ibiza"}).DisplayName())
	assert.Equal(t, "Seat", (&Car{Brand: "Seat"}).DisplayName())
}

func TestInspectionLinkExpired(t *testing.T) {
	now := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)
	link := InspectionLink{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, link.Expired(now))
	assert.True(t, link.Expired(now.Add(time.Hour)))
	assert.True(t, link.Expired(now.Add(2*time.Hour)))
}

func TestValidInspectionType(t *testing.T) {
	assert.True(t, ValidInspectionType(InspectionDelivery))
	assert.True(t, ValidInspectionType(InspectionReturn))
	assert.False(t, ValidInspectionType("damage"))
}

func TestContractIsSigned(t *testing.T) {
	c := Contract{}
	assert.False(t, c.IsSigned())
	now := time.Now()
	c.SignedAt = &now
	assert.True(t, c.IsSigned())
}

func TestBookingDetailsIsMultiVehicle(t *testing.T) {
	d := BookingDetails{}
	assert.False(t, d.IsMultiVehicle())
	d.Vehicles = []BookingVehicle{{CarID: 1}}
	assert.True(t, d.IsMultiVehicle())
}

func TestCompanyHasLogo(t *testing.T) {
	var nilCompany *CompanyConfig
	assert.False(t, nilCompany.HasLogo())
	assert.False(t, (&CompanyConfig{}).HasLogo())
	assert.True(t, (&CompanyConfig{LogoKey: "logo.png", LogoBackend: AssetBackendLocal}).HasLogo())
}
