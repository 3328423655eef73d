package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type decoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]decoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]decoderFunc)}
}

// NewConsumerDecoders registers the v1 decoders for every event the workers consume.
func NewConsumerDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderPaid, 1, typed[payloads.OrderPaidEvent])
	reg.Register(enums.EventOrderShippingUpdated, 1, typed[payloads.OrderShippingUpdatedEvent])
	reg.Register(enums.EventProductStatusChanged, 1, typed[payloads.ProductStatusChangedEvent])
	reg.Register(enums.EventSellerCreditSkipped, 1, typed[payloads.SellerCreditSkippedEvent])
	reg.Register(enums.EventUserRegistered, 1, typed[payloads.UserRegisteredEvent])
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder decoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	if decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]; ok {
		return decoder(payload)
	}
	return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
}

// DecodeMessage unwraps a published envelope and decodes its data.
func (r *DecoderRegistry) DecodeMessage(eventType enums.OutboxEventType, body []byte) (*outbox.PayloadEnvelope, interface{}, error) {
	envelope, err := outbox.DecodeEnvelope(body)
	if err != nil {
		return nil, nil, NewNonRetryableError(err)
	}
	payload, err := r.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return &envelope, nil, NewNonRetryableError(err)
	}
	return &envelope, payload, nil
}

func typed[T any](payload json.RawMessage) (interface{}, error) {
	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
