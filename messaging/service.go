package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// New creates the Broker for the given configuration. It returns nil if no broker is configured.
func New(config Config, entities []Entity) (Broker, error) {
	var broker Broker
	if config.AzureServiceBus.Enabled() {
		serviceBusBroker, err := newAzureServiceBusBroker(config.AzureServiceBus, entities, config.EntityPrefix)
		if err != nil {
			return nil, fmt.Errorf("azure service bus: %w", err)
		}
		broker = serviceBusBroker
	}
	if config.HTTP.Endpoint != "" {
		log.Info().Msgf("Messaging: sending messages over HTTP to %s", config.HTTP.Endpoint)
		broker = NewHTTPBroker(config.HTTP, broker)
	}
	return broker, nil
}

// Config holds the configuration for messaging.
type Config struct {
	// AzureServiceBus holds the configuration for messaging using Azure ServiceBus.
	AzureServiceBus AzureServiceBusConfig `koanf:"azureservicebus"`
	HTTP            HTTPBrokerConfig      `koanf:"http"`
	// EntityPrefix is prepended to the names of topics and queues, e.g. to separate environments sharing a namespace.
	EntityPrefix string `koanf:"entityprefix"`
}

func (c Config) Validate(strictMode bool) error {
	if strictMode && c.HTTP.Endpoint != "" {
		return errors.New("http endpoint is not allowed in strict mode")
	}
	return nil
}

// Entity is a topic or queue on the message broker.
type Entity struct {
	Name string
}

// FullName returns the name of the entity on the broker.
func (e Entity) FullName(prefix string) string {
	return prefix + e.Name
}

type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID *string
}

// Broker defines an interface for interacting with a message broker, including sending messages and closing connections.
type Broker interface {
	Close(ctx context.Context) error
	SendMessage(ctx context.Context, entity Entity, message *Message) error
}
