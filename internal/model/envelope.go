package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UnknownEventType is used when an envelope carries no usable "type".
const UnknownEventType = "unknown"

// EventEnvelope is one webhook delivery from the payment processor:
// { "type": "...", "data": { "object": { ... } } }.
type EventEnvelope struct {
	Type   string
	Object map[string]any
}

// ParseEnvelope decodes a raw webhook body. It never fails: invalid JSON,
// a missing type or a non-object data.object all degrade to sentinel values.
// Numbers are kept as json.Number so minor-unit amounts stay exact.
func ParseEnvelope(raw []byte) EventEnvelope {
	env := EventEnvelope{Type: UnknownEventType, Object: map[string]any{}}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return env
	}

	if t, ok := body["type"].(string); ok && strings.TrimSpace(t) != "" {
		env.Type = t
	}
	if data, ok := body["data"].(map[string]any); ok {
		if obj, ok := data["object"].(map[string]any); ok {
			env.Object = obj
		}
	}
	return env
}
