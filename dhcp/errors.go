package dhcp

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted is returned when a message exchange ran out of
	// retransmissions (MRC or MRD reached) without a valid reply. The
	// run has failed but the caller may start a fresh one.
	ErrRetryExhausted = errors.New("dhcp: retransmissions exhausted")

	// ErrNoOffer is returned when discovery exhausted its retries
	// without receiving a valid Offer or Advertise.
	ErrNoOffer = fmt.Errorf("dhcp: no offer received: %w", ErrRetryExhausted)

	// ErrTimeout is returned when the caller-configured overall timeout
	// elapsed before a lease was bound.
	ErrTimeout = fmt.Errorf("dhcp: operation timed out: %w", ErrRetryExhausted)

	// ErrLeaseLost is returned when rebinding failed before lease
	// expiry. The lease store has been cleared and the machine is back
	// in the initial state; the caller may keep stepping to reacquire.
	ErrLeaseLost = errors.New("dhcp: lease lost")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("dhcp: client closed")

	// ErrNoLease is returned by Release and Decline when no lease is
	// held.
	ErrNoLease = errors.New("dhcp: no lease held")
)

// TransportError wraps a socket or capture-channel failure. Transport
// errors are fatal to the current run.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "dhcp: transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }
