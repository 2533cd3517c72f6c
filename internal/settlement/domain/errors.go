package domain

import "errors"

var (
	// ErrAmountMismatch means the recomputed total disagrees with what
	// the processor captured. Terminal: the order is never created,
	// the case goes to manual reconciliation.
	ErrAmountMismatch = errors.New("amount_mismatch")
	// ErrPaymentNotConfirmed means the processor has not reported a
	// successful capture for the intent yet. Retryable.
	ErrPaymentNotConfirmed = errors.New("payment_not_confirmed")
)
