package telephony

import (
	"errors"
	"fmt"
)

// GatewayError is the only error type adapters return.
// StatusCode is 0 when the failure happened before an HTTP response (network, timeout, panic).
type GatewayError struct {
	Op         string
	Message    string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (Status: %d)", opDescription(e.Op), e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", opDescription(e.Op), e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AsGatewayError reports whether err carries a *GatewayError.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

const (
	OpPlaceCall = "place_call"
	OpGetCall   = "get_call"
	OpHealth    = "health"
)

func opDescription(op string) string {
	switch op {
	case OpPlaceCall:
		return "Failed to create call"
	case OpGetCall:
		return "Failed to fetch call details"
	case OpHealth:
		return "Provider health check failed"
	default:
		return "Provider call failed"
	}
}
