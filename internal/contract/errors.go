package contract

import "errors"

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrContractNotFound  = errors.New("contract not found")
	ErrMissingCustomer   = errors.New("booking has no customer")
	ErrMissingPickupDate = errors.New("booking has no pickup date")
	ErrAlreadySigned     = errors.New("contract is already signed")
	ErrMissingSignature  = errors.New("signature data is required")
)
