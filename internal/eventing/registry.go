package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Registry resolves outbox event type names back to concrete payloads. The
// service currently carries a single event type, the alarm state change, but
// the dispatcher stays decoupled from it by going through typed decoders
// registered here.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]func([]byte) (any, error)
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]func([]byte) (any, error))}
}

// Register makes T decodable. The name must match what BuildEnvelope stamps
// on the outbox row, so both sides derive it from the same type.
func Register[T any](r *Registry) {
	if r == nil {
		return
	}
	name := reflect.TypeOf((*T)(nil)).Elem().String()
	r.mu.Lock()
	r.decoders[name] = func(payload []byte) (any, error) {
		var event T
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	}
	r.mu.Unlock()
}

// DecodePayload turns a stored envelope back into its event value.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	decode := r.decoders[env.EventType]
	r.mu.RUnlock()
	if decode == nil {
		return nil, fmt.Errorf("eventing: unknown event type %q", env.EventType)
	}
	return decode(env.Payload)
}
