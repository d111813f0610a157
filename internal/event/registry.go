package event

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

// Decoder turns a raw payload into its typed event.
type Decoder func(raw []byte) (Named, error)

// Registry maps logical event names to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry returns a registry that already knows the lifecycle markers.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	Register[Deleted](r)
	Register[Restored](r)
	Register[LargePointer](r)
	return r
}

// Register adds T under the name returned by its zero value. T must be a value
// type; a nil pointer cannot report its name.
func Register[T Named](r *Registry) {
	var zero T
	Alias[T](r, zero.EventName())
}

// Alias registers T under an additional name, typically the name an event was
// stored with before it was renamed.
func Alias[T Named](r *Registry, name string) {
	r.RegisterDecoder(name, func(raw []byte) (Named, error) {
		var v T
		if len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
}

// RegisterDecoder adds a custom decoder for name, replacing any previous one.
func (r *Registry) RegisterDecoder(name string, decode Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = decode
}

// Resolves reports whether name has a decoder.
func (r *Registry) Resolves(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[name]
	return ok
}

// Decode resolves a stored payload. Names without a decoder yield Unknown and
// no error. A payload that fails to decode also yields Unknown, together with
// the decode error so the caller can report it.
func (r *Registry) Decode(name string, raw []byte) (Named, error) {
	r.mu.RLock()
	decode, ok := r.decoders[name]
	r.mu.RUnlock()
	if !ok {
		return Unknown{Name: name, Raw: raw}, nil
	}
	v, err := decode(raw)
	if err != nil {
		return Unknown{Name: name, Raw: raw}, fmt.Errorf("decode event %q: %w", name, err)
	}
	return v, nil
}
