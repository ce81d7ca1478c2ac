package garmin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FaultKind is the closed failure taxonomy for every remote call. The Garmin
// Connect API is unofficial and changes behaviour without notice, so call
// sites need to tell "fix your credentials" apart from "try again later"
// instead of collapsing everything into one error.
type FaultKind string

const (
	// FaultAuth means the remote service rejected the credentials (wrong
	// password, locked account, 2FA required). Never retried automatically.
	FaultAuth FaultKind = "authentication_failed"
	// FaultConnectivity means the remote service was unreachable or timed out.
	FaultConnectivity FaultKind = "connectivity_failed"
	// FaultUnexpected is the catch-all for everything else the remote call
	// produced. Logged with detail, surfaced generically.
	FaultUnexpected FaultKind = "unexpected_failure"
)

// Fault is the discriminated error returned by every adapter operation.
type Fault struct {
	Kind   FaultKind
	Op     string
	Reason string
	err    error
}

func (f *Fault) Error() string {
	if f.err != nil {
		return fmt.Sprintf("garmin: %s: %s: %v", f.Op, f.Reason, f.err)
	}
	return fmt.Sprintf("garmin: %s: %s", f.Op, f.Reason)
}

func (f *Fault) Unwrap() error { return f.err }

// KindOf extracts the fault kind from an adapter error. Errors that did not
// originate from the adapter report FaultUnexpected.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultUnexpected
}

// classifyTransport maps transport-level failures (no HTTP response at all)
// onto the taxonomy. Timeouts and unreachable hosts are connectivity; an
// aborted context stays unexpected so cancellation is not presented to users
// as a Garmin outage.
func classifyTransport(op string, err error) *Fault {
	if errors.Is(err, context.Canceled) {
		return &Fault{Kind: FaultUnexpected, Op: op, Reason: "request cancelled", err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Fault{Kind: FaultConnectivity, Op: op, Reason: "request timed out", err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Fault{Kind: FaultConnectivity, Op: op, Reason: "request timed out", err: err}
	}
	return &Fault{Kind: FaultConnectivity, Op: op, Reason: "could not reach Garmin Connect", err: err}
}

// classifyStatus maps non-2xx HTTP responses onto the taxonomy.
func classifyStatus(op string, status int) *Fault {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusLocked:
		return &Fault{Kind: FaultAuth, Op: op, Reason: "Garmin Connect rejected the credentials"}
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return &Fault{Kind: FaultConnectivity, Op: op, Reason: fmt.Sprintf("Garmin Connect unavailable (status %d)", status)}
	default:
		return &Fault{Kind: FaultUnexpected, Op: op, Reason: fmt.Sprintf("unexpected response status %d", status)}
	}
}
