package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	LanguageSpanish = "es"
	LanguageEnglish = "en"
)

// Reasons recorded in contract history.
const (
	ReasonBookingUpdated  = "booking updated"
	ReasonManualUpdate    = "manual update"
	ReasonInspectionAdded = "inspection recorded"
	ReasonSignature       = "contract signed"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)
