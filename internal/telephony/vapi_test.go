package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-dialer/internal/config"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) (*VapiProvider, *[]string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	var ops []string
	p := NewVapiProvider(config.VapiConfig{APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}, func(op string, err error, _ time.Duration) {
		ops = append(ops, op)
	})
	return p, &ops
}

func TestVapiProvider_PlaceCall(t *testing.T) {
	p, ops := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/call" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer key")
		}
		var body vapiCreateCall
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.AssistantID != "asst" || body.Customer.Number != "+15551234567" {
			t.Errorf("unexpected body %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"call-1","status":"queued"}`))
	})

	ref, err := p.PlaceCall(context.Background(), PlaceCallRequest{PhoneNumber: "+15551234567", AssistantID: "asst"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ref.ExternalID != "call-1" || ref.Status != "queued" {
		t.Fatalf("unexpected ref %+v", ref)
	}
	if len(*ops) != 1 || (*ops)[0] != OpPlaceCall {
		t.Fatalf("expected one observed place_call, got %v", *ops)
	}
}

func TestVapiProvider_ErrorsAreGatewayErrors(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":["customer.number must be a valid phone number"],"error":"Bad Request"}`))
	})

	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{PhoneNumber: "+1", AssistantID: "a"})
	ge, ok := AsGatewayError(err)
	if !ok {
		t.Fatalf("expected GatewayError, got %T", err)
	}
	if ge.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", ge.StatusCode)
	}
	if ge.Message != "customer.number must be a valid phone number" {
		t.Fatalf("unexpected message %q", ge.Message)
	}
}

func TestVapiProvider_TransportFailure(t *testing.T) {
	p := NewVapiProvider(config.VapiConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	_, err := p.GetCall(context.Background(), "abc")
	ge, ok := AsGatewayError(err)
	if !ok {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.StatusCode != 0 || ge.Message == "" {
		t.Fatalf("unexpected error %+v", ge)
	}
}

func TestVapiProvider_GetCall(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call/abc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"abc","status":"in-progress","recordingUrl":"https://r"}`))
	})
	st, err := p.GetCall(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Status != "in-progress" || st.RecordingURL != "https://r" {
		t.Fatalf("unexpected state %+v", st)
	}

	if _, err := p.GetCall(context.Background(), UnknownCallID); err == nil {
		t.Fatalf("expected error for unknown provider id")
	}
}

func TestVapiProvider_GetCallWithLongTranscript(t *testing.T) {
	transcript := strings.Repeat("AI: hello there. User: hi. ", 40000)
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       "call-9",
			"status":   "ended",
			"messages": []map[string]string{{"role": "bot", "message": transcript}},
			"artifact": map[string]any{"transcript": transcript, "recordingUrl": "https://rec/9.wav"},
		})
	})

	st, err := p.GetCall(context.Background(), "call-9")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Status != "ended" || st.Transcript != transcript || st.RecordingURL != "https://rec/9.wav" {
		t.Fatalf("unexpected state status=%q transcript=%d bytes", st.Status, len(st.Transcript))
	}
}

func TestVapiProvider_MissingKey(t *testing.T) {
	p := NewVapiProvider(config.VapiConfig{}, nil)
	_, err := p.PlaceCall(context.Background(), PlaceCallRequest{PhoneNumber: "+15551234567", AssistantID: "a"})
	if _, ok := AsGatewayError(err); !ok {
		t.Fatalf("expected GatewayError, got %v", err)
	}
}
