package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Car struct {
	ID           int64           `json:"id"`
	Registration string          `json:"registration"`
	Brand        string          `json:"brand"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	Color        string          `json:"color"`
	FuelType     string          `json:"fuel_type"`
	DailyRate    decimal.Decimal `json:"daily_rate"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (c *Car) DisplayName() string {
	if c.Model == "" {
		return c.Brand
	}
	return c.Brand + " " + c.Model
}
