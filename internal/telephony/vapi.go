package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-dialer/internal/config"
)

// Observer receives the outcome of every provider request (for metrics).
type Observer func(op string, err error, elapsed time.Duration)

// VapiProvider places outbound calls through the Vapi REST API.
type VapiProvider struct {
	apiKey        string
	baseURL       string
	phoneNumberID string
	httpClient    *http.Client
	observe       Observer
}

const (
	// maxErrorBody bounds how much of an error response is read for the message.
	maxErrorBody = 64 << 10
	// maxResponseBody bounds a successful response. Call resources of long calls carry
	// the full transcript and message log.
	maxResponseBody = 32 << 20
)

func NewVapiProvider(cfg config.VapiConfig, observe Observer) *VapiProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.vapi.ai"
	}
	return &VapiProvider{
		apiKey:        cfg.APIKey,
		baseURL:       base,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    &http.Client{Timeout: timeout},
		observe:       observe,
	}
}

// WithHTTPClient swaps the transport (tests point it at httptest servers).
func (p *VapiProvider) WithHTTPClient(c *http.Client) *VapiProvider {
	p.httpClient = c
	return p
}

func (p *VapiProvider) Name() string { return "vapi" }

func (p *VapiProvider) HealthCheck(ctx context.Context) error {
	_, err := p.do(ctx, OpHealth, http.MethodGet, "/assistant?limit=1", nil)
	return err
}

type vapiCustomer struct {
	Number string `json:"number"`
}

type vapiCreateCall struct {
	AssistantID   string       `json:"assistantId"`
	PhoneNumberID string       `json:"phoneNumberId,omitempty"`
	Customer      vapiCustomer `json:"customer"`
}

func (p *VapiProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (CallRef, error) {
	if req.PhoneNumber == "" || req.AssistantID == "" {
		return CallRef{}, &GatewayError{Op: OpPlaceCall, Message: "phone number and assistant id are required"}
	}
	body := vapiCreateCall{
		AssistantID:   req.AssistantID,
		PhoneNumberID: p.phoneNumberID,
		Customer:      vapiCustomer{Number: req.PhoneNumber},
	}
	payload, err := p.do(ctx, OpPlaceCall, http.MethodPost, "/call", body)
	if err != nil {
		return CallRef{}, err
	}
	return RefFromPayload(payload), nil
}

func (p *VapiProvider) GetCall(ctx context.Context, externalID string) (CallState, error) {
	if externalID == "" || externalID == UnknownCallID {
		return CallState{}, &GatewayError{Op: OpGetCall, Message: "call has no provider id"}
	}
	payload, err := p.do(ctx, OpGetCall, http.MethodGet, "/call/"+url.PathEscape(externalID), nil)
	if err != nil {
		return CallState{}, err
	}
	st := StateFromPayload(payload)
	if st.ExternalID == UnknownCallID {
		st.ExternalID = externalID
	}
	return st, nil
}

// do performs one request and converts every failure mode into *GatewayError.
func (p *VapiProvider) do(ctx context.Context, op, method, path string, in any) (out Payload, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &GatewayError{Op: op, Message: fmt.Sprintf("unexpected provider failure: %v", r)}
		}
		if p.observe != nil {
			p.observe(op, err, time.Since(start))
		}
	}()

	if p.apiKey == "" {
		return nil, &GatewayError{Op: op, Message: "provider API key is not configured"}
	}

	var body io.Reader
	if in != nil {
		b, mErr := json.Marshal(in)
		if mErr != nil {
			return nil, &GatewayError{Op: op, Message: "encode request", Err: mErr}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return nil, &GatewayError{Op: op, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &GatewayError{Op: op, Message: errorMessage(raw, resp.Status), StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "read response", StatusCode: resp.StatusCode, Err: err}
	}
	if len(raw) > maxResponseBody {
		return nil, &GatewayError{Op: op, Message: "provider response too large", StatusCode: resp.StatusCode}
	}

	payload, err := DecodePayload(raw)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "malformed provider response", StatusCode: resp.StatusCode, Err: err}
	}
	return payload, nil
}

// errorMessage pulls a human-readable message out of an error body.
// The provider sends either {"message": "..."} or {"message": ["...", "..."]}.
func errorMessage(raw []byte, status string) string {
	p, err := DecodePayload(raw)
	if err != nil {
		if s := strings.TrimSpace(string(raw)); s != "" {
			return s
		}
		return status
	}
	if msg := p.String("message"); msg != "" {
		return msg
	}
	if list, ok := p["message"].([]any); ok {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	if msg := p.String("error"); msg != "" {
		return msg
	}
	return status
}
