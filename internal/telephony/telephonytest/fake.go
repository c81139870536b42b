// Package telephonytest provides a scriptable telephony.Gateway for tests.
package telephonytest

import (
	"context"
	"fmt"
	"sync"

	"voice-dialer/internal/telephony"
)

// Gateway is an in-memory telephony.Gateway. Calls are numbered in placement order.
type Gateway struct {
	mu sync.Mutex

	// FailNumbers makes PlaceCall fail for these phone numbers.
	FailNumbers map[string]string
	// States is returned by GetCall, keyed by external id.
	States map[string]telephony.CallState
	// GetErr, when set, is returned by every GetCall.
	GetErr error
	// OnPlace runs before each placement (tests use it to observe ordering).
	OnPlace func(req telephony.PlaceCallRequest)

	Placed   []telephony.PlaceCallRequest
	inFlight int
	// MaxInFlight records the highest number of concurrent PlaceCall invocations.
	MaxInFlight int
}

func New() *Gateway {
	return &Gateway{FailNumbers: map[string]string{}, States: map[string]telephony.CallState{}}
}

func (g *Gateway) Name() string { return "fake" }

func (g *Gateway) HealthCheck(ctx context.Context) error { return nil }

func (g *Gateway) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.CallRef, error) {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.MaxInFlight {
		g.MaxInFlight = g.inFlight
	}
	onPlace := g.OnPlace
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if onPlace != nil {
		onPlace(req)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.Placed = append(g.Placed, req)
	if msg, ok := g.FailNumbers[req.PhoneNumber]; ok {
		return telephony.CallRef{}, &telephony.GatewayError{Op: telephony.OpPlaceCall, Message: msg, StatusCode: 400}
	}
	id := fmt.Sprintf("ext-%d", len(g.Placed))
	return telephony.CallRef{ExternalID: id, Status: "queued", Raw: telephony.Payload{"id": id, "status": "queued"}}, nil
}

func (g *Gateway) GetCall(ctx context.Context, externalID string) (telephony.CallState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.GetErr != nil {
		return telephony.CallState{}, g.GetErr
	}
	st, ok := g.States[externalID]
	if !ok {
		return telephony.CallState{}, &telephony.GatewayError{Op: telephony.OpGetCall, Message: "not found", StatusCode: 404}
	}
	return st, nil
}

// PlacedNumbers returns the dialed numbers in order.
func (g *Gateway) PlacedNumbers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.Placed))
	for _, p := range g.Placed {
		out = append(out, p.PhoneNumber)
	}
	return out
}
