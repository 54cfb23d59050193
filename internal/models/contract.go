package models

import "time"

type Contract struct {
	ID             int64      `json:"id"`
	BookingID      int64      `json:"booking_id"`
	ContractNumber string     `json:"contract_number"`
	ContractText   string     `json:"contract_text"`
	Version        int64      `json:"version"`
	SignedAt       *time.Time `json:"signed_at"`
	SignatureData  *string    `json:"signature_data"`
	IPAddress      *string    `json:"ip_address"`
	UserAgent      *string    `json:"user_agent"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (c *Contract) IsSigned() bool {
	return c.SignedAt != nil
}

// ContractHistory is an append-only snapshot of a superseded contract text.
type ContractHistory struct {
	ID           int64     `json:"id"`
	ContractID   int64     `json:"contract_id"`
	Version      int64     `json:"version"`
	ContractText string    `json:"contract_text"`
	ChangeReason string    `json:"change_reason"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// ContractUpdate describes one versioned write of a contract row.
// History is written in the same transaction when non-nil.
type ContractUpdate struct {
	ContractID    int64
	FromVersion   int64
	ContractText  string
	SignedAt      *time.Time
	SignatureData *string
	IPAddress     *string
	UserAgent     *string
	History       *ContractHistory
}

// ContractRegisterEntry is one row of the contract register (exports, sheets).
type ContractRegisterEntry struct {
	ContractID     int64      `json:"contract_id"`
	ContractNumber string     `json:"contract_number"`
	BookingID      int64      `json:"booking_id"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	PickupDate     *time.Time `json:"pickup_date"`
	ReturnDate     *time.Time `json:"return_date"`
	Version        int64      `json:"version"`
	SignedAt       *time.Time `json:"signed_at"`
	CreatedAt      time.Time  `json:"created_at"`
}
