package domain

import "fmt"

// IntakeError is returned when a snapshot cannot be fetched or turned into entries.
// It is fatal to the run.
type IntakeError struct {
	Op  string // "fetch" or "transform"
	Err error
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("intake %s: %v", e.Op, e.Err)
}

func (e *IntakeError) Unwrap() error {
	return e.Err
}

// SnapshotError reports a required snapshot field that is missing or malformed.
type SnapshotError struct {
	Field  string
	Reason string
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot field %s: %s", e.Field, e.Reason)
}

// ReconciliationError is returned when no device-local reading can be correlated
// with the server clock.
type ReconciliationError struct {
	Reason string
}

func (e *ReconciliationError) Error() string {
	return "reconcile device time: " + e.Reason
}

// DeliveryError is returned when a push to a sync target fails. It is recoverable.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
