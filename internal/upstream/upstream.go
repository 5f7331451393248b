// Package upstream carries the error type shared by all external-service
// clients. A failed call keeps the original detail for diagnostics but is
// never retried automatically.
package upstream

import "fmt"

// Error reports a failed call to an external service.
type Error struct {
	Service string // which upstream failed, e.g. "plantnet"
	Status  int    // HTTP status if a response was received, 0 otherwise
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
