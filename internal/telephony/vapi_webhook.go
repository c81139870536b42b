package telephony

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Server message types we act on. Everything else is acknowledged and ignored.
const (
	MessageStatusUpdate    = "status-update"
	MessageEndOfCallReport = "end-of-call-report"
	maxWebhookBody         = 1 << 20
)

var ErrIgnoredMessage = errors.New("telephony: message type not handled")

// CallEvent is a provider push about one call, normalized to CallState.
type CallEvent struct {
	Type  string
	State CallState
}

// ParseVapiWebhook decodes a server message of the form {"message": {...}}.
// Keep it provider-adapter-only; status mapping and persistence happen in internal/calls.
func ParseVapiWebhook(r *http.Request) (CallEvent, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return CallEvent{}, fmt.Errorf("read body: %w", err)
	}
	doc, err := DecodePayload(raw)
	if err != nil {
		return CallEvent{}, fmt.Errorf("decode body: %w", err)
	}
	msg := doc.Object("message")
	if msg == nil {
		return CallEvent{}, errors.New("missing message")
	}

	typ := msg.String("type")
	switch typ {
	case MessageStatusUpdate, MessageEndOfCallReport:
	default:
		return CallEvent{Type: typ}, ErrIgnoredMessage
	}

	call := msg.Object("call")
	if call == nil {
		return CallEvent{}, errors.New("missing message.call")
	}
	st := StateFromPayload(call)
	if st.ExternalID == UnknownCallID {
		return CallEvent{}, errors.New("missing message.call.id")
	}

	// Message-level fields are fresher than the embedded call snapshot.
	if s := msg.String("status"); s != "" {
		st.Status = s
	}
	if s := msg.String("endedReason"); s != "" {
		st.EndedReason = s
	}
	if s := msg.String("recordingUrl", "artifact.recordingUrl"); s != "" {
		st.RecordingURL = s
	}
	if s := msg.String("transcript", "artifact.transcript"); s != "" {
		st.Transcript = s
	}
	if s := msg.String("summary", "analysis.summary"); s != "" {
		st.Summary = s
	}
	if typ == MessageEndOfCallReport {
		st.Status = endOfCallStatus(st.EndedReason)
	}
	st.Raw = msg
	return CallEvent{Type: typ, State: st}, nil
}

// endOfCallStatus turns a final report into a terminal provider status.
func endOfCallStatus(endedReason string) string {
	r := strings.ToLower(endedReason)
	if strings.Contains(r, "error") || strings.Contains(r, "failed") {
		return "failed"
	}
	return "completed"
}
