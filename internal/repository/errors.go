package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist for the given company.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned when a conditional transition affected no
	// row because the record is no longer in the expected prior state.
	ErrStaleState = errors.New("record changed state")
	// ErrMissingPayment is returned by ClearMatch when the matched payment
	// does not exist or does not point back at the transaction.
	ErrMissingPayment = errors.New("matched payment missing")
)
