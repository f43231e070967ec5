package messaging

import (
	"context"
	"sync"
)

var _ Broker = &MemoryBroker{}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		messages: make(map[string][]Message),
	}
}

// MemoryBroker keeps sent messages in memory, per entity. It is used in tests and local development.
type MemoryBroker struct {
	mux      sync.Mutex
	messages map[string][]Message
}

func (m *MemoryBroker) SendMessage(_ context.Context, entity Entity, message *Message) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.messages[entity.Name] = append(m.messages[entity.Name], *message)
	return nil
}

// Messages returns the messages sent to the entity.
func (m *MemoryBroker) Messages(entity Entity) []Message {
	m.mux.Lock()
	defer m.mux.Unlock()
	return append([]Message(nil), m.messages[entity.Name]...)
}

func (m *MemoryBroker) Close(_ context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.messages = map[string][]Message{}
	return nil
}
