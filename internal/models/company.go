package models

import "time"

// Asset backends for stored files such as the company logo.
const (
	AssetBackendLocal = "local"
	AssetBackendS3    = "s3"
	AssetBackendURL   = "url"
)

// CompanyConfig is the branding record printed on contracts.
type CompanyConfig struct {
	ID             int64     `json:"id"`
	CompanyName    string    `json:"company_name"`
	TaxID          string    `json:"tax_id"`
	Address        string    `json:"address"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email"`
	Website        string    `json:"website"`
	LogoBackend    string    `json:"logo_backend"`
	LogoKey        string    `json:"logo_key"`
	PrimaryColor   string    `json:"primary_color"`
	SecondaryColor string    `json:"secondary_color"`
	Active         bool      `json:"active"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c *CompanyConfig) HasLogo() bool {
	return c != nil && c.LogoKey != ""
}
