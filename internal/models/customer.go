package models

import "time"

type Customer struct {
	ID                int64      `json:"id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	DocumentType      string     `json:"document_type"`
	DocumentNumber    string     `json:"document_number"`
	LicenseNumber     string     `json:"license_number"`
	Address           string     `json:"address"`
	City              string     `json:"city"`
	PostalCode        string     `json:"postal_code"`
	Country           string     `json:"country"`
	Nationality       string     `json:"nationality"`
	BirthDate         *time.Time `json:"birth_date,omitempty"`
	PreferredLanguage string     `json:"preferred_language"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	if c.FirstName == "" {
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}
