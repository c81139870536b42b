package telephony

import "context"

// Gateway is the provider-agnostic contract business logic uses to place and inspect calls.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - Every failure is returned as *GatewayError; adapters never panic past this boundary.
// - Provider payloads are kept as opaque Payload maps; typed fields are read through accessors.
type Gateway interface {
	Name() string
	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) (CallRef, error)
	GetCall(ctx context.Context, externalID string) (CallState, error)
}

// PlaceCallRequest asks the provider to dial PhoneNumber with the given assistant.
type PlaceCallRequest struct {
	// PhoneNumber is E.164.
	PhoneNumber string `json:"phone_number"`
	AssistantID string `json:"assistant_id"`
}

// UnknownCallID is stored when the provider response carries no recognizable call id.
const UnknownCallID = "unknown-id"

// CallRef is the provider's acknowledgement of a placed call.
type CallRef struct {
	ExternalID string
	Status     string
	Raw        Payload
}

// CallState is the provider-side view of an existing call.
type CallState struct {
	ExternalID   string
	Status       string
	EndedReason  string
	RecordingURL string
	Transcript   string
	Summary      string
	Raw          Payload
}

// RefFromPayload extracts a CallRef from a create-call response.
// The id field name is provider-controlled: callId wins over id, and a missing id yields UnknownCallID.
func RefFromPayload(p Payload) CallRef {
	return CallRef{
		ExternalID: p.StringOr(UnknownCallID, "callId", "id"),
		Status:     p.String("status"),
		Raw:        p,
	}
}

// StateFromPayload extracts a CallState from a call resource or webhook call block.
func StateFromPayload(p Payload) CallState {
	return CallState{
		ExternalID:   p.StringOr(UnknownCallID, "callId", "id"),
		Status:       p.String("status"),
		EndedReason:  p.String("endedReason"),
		RecordingURL: p.String("recordingUrl", "recording_url", "artifact.recordingUrl"),
		Transcript:   p.String("transcript", "artifact.transcript"),
		Summary:      p.String("summary", "analysis.summary"),
		Raw:          p,
	}
}
