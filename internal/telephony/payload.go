package telephony

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is an untyped provider document. Accessors never fail: a missing or
// mistyped field reads as the zero value.
type Payload map[string]any

// String returns the first non-empty string found at any of paths.
// A path may descend into nested objects with dots ("artifact.recordingUrl").
// Numbers are formatted, other types are ignored.
func (p Payload) String(paths ...string) string {
	return p.StringOr("", paths...)
}

// StringOr is String with an explicit fallback.
func (p Payload) StringOr(fallback string, paths ...string) string {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			return t.String()
		}
	}
	return fallback
}

// Object returns the nested object at path, or nil.
func (p Payload) Object(path string) Payload {
	v, ok := p.lookup(path)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return Payload(m)
}

// JSON renders the payload for storage. A nil payload renders as "{}".
func (p Payload) JSON() []byte {
	if p == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(map[string]any(p))
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (p Payload) lookup(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}
	var cur any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// DecodePayload parses a JSON object; anything else yields an empty payload and the error.
func DecodePayload(b []byte) (Payload, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return Payload{}, err
	}
	if m == nil {
		return Payload{}, nil
	}
	return Payload(m), nil
}
