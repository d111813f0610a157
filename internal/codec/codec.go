package codec

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/example/eventvault/internal/event"
)

// Codec serializes event payloads and aggregate state.
type Codec struct {
	registry *event.Registry
}

func New(registry *event.Registry) *Codec {
	return &Codec{registry: registry}
}

// EncodeEvent returns the JSON form of the event payload.
func (c *Codec) EncodeEvent(data event.Named) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode event %q: %w", data.EventName(), err)
	}
	return b, nil
}

// DecodeEvent resolves a payload through the registry. Unresolvable types come
// back as event.Unknown.
func (c *Codec) DecodeEvent(typeName string, raw []byte) (event.Named, error) {
	return c.registry.Decode(typeName, raw)
}

// EncodeAggregate returns the JSON form of an aggregate, used for snapshots and
// cache entries.
func (c *Codec) EncodeAggregate(agg any) ([]byte, error) {
	return json.Marshal(agg)
}

// DecodeAggregate populates into from data.
func (c *Codec) DecodeAggregate(data []byte, into any) error {
	return json.Unmarshal(data, into)
}

type envelope struct {
	TypeName string          `json:"typeName"`
	Data     json.RawMessage `json:"data"`
}

// EncodeEnvelope wraps an already encoded payload with its logical type name.
// Oversized events are stored in this form.
func (c *Codec) EncodeEnvelope(typeName string, payload []byte) ([]byte, error) {
	return json.Marshal(envelope{TypeName: typeName, Data: payload})
}

// DecodeEnvelope reverses EncodeEnvelope and resolves the payload.
func (c *Codec) DecodeEnvelope(data []byte) (event.Named, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return c.registry.Decode(env.TypeName, env.Data)
}
