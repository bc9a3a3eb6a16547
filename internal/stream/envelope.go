package stream

import "encoding/json"

// envelope is the wrapped frame shape older backend plugins emit. Newer
// plugins send the payload flat with a top-level type.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Normalize flattens an enveloped frame `{"type": T, "payload": {...}}` into
// its payload with the type injected, so handlers only ever see the flat
// shape. Frames that are not enveloped pass through unchanged, as does
// anything that fails to parse; handlers report their own decode errors.
func Normalize(raw []byte) []byte {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" || len(env.Payload) == 0 {
		return raw
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return raw
	}
	if _, ok := payload["type"]; !ok {
		t, err := json.Marshal(env.Type)
		if err != nil {
			return raw
		}
		payload["type"] = t
	}

	flat, err := json.Marshal(payload)
	if err != nil {
		return raw
	}
	return flat
}
