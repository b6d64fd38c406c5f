package service

import "errors"

var (
	// ErrOrderNotFound is returned when no completed order has the given id
	ErrOrderNotFound = errors.New("completed order not found")

	// ErrInvalidProductSet is returned before any write when an order has no
	// products or carries a non-positive product id
	ErrInvalidProductSet = errors.New("invalid product set")

	// ErrInvalidLocator is returned when an asset mapping uses the reserved
	// fallback prefix or a malformed locator
	ErrInvalidLocator = errors.New("invalid asset locator")

	// ErrLedgerWriteFailed wraps storage failures while writing a grant
	ErrLedgerWriteFailed = errors.New("ledger write failed")

	// ErrGrantNotFound is returned when an operation needs an existing grant
	ErrGrantNotFound = errors.New("grant not found")

	// ErrReconcileInProgress is returned when another reconciliation run holds the lock
	ErrReconcileInProgress = errors.New("reconciliation already in progress")
)
