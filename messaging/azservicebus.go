package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

var _ Broker = &AzureServiceBusBroker{}

// AzureServiceBusConfig holds the configuration for connecting to and interacting with a AzureServiceBus instance.
type AzureServiceBusConfig struct {
	Hostname         string `koanf:"hostname"`
	ConnectionString string `koanf:"connectionstring" description:"This is the connection string for connecting to AzureServiceBus."`
}

func (a AzureServiceBusConfig) Enabled() bool {
	return a.Hostname != "" || a.ConnectionString != ""
}

func newAzureServiceBusBroker(conf AzureServiceBusConfig, entities []Entity, entityPrefix string) (*AzureServiceBusBroker, error) {
	var client *azservicebus.Client
	var err error
	if conf.ConnectionString != "" {
		client, err = azservicebus.NewClientFromConnectionString(conf.ConnectionString, nil)
	} else if conf.Hostname != "" {
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		client, err = azservicebus.NewClient(conf.Hostname, cred, nil)
	} else {
		return nil, errors.New("configuration is missing hostname or connection string")
	}
	if err != nil {
		return nil, err
	}
	senders := map[string]*azservicebus.Sender{}
	for _, entity := range entities {
		sender, err := client.NewSender(entity.FullName(entityPrefix), nil)
		if err != nil {
			return nil, fmt.Errorf("create sender (name=%s): %w", entity.FullName(entityPrefix), err)
		}
		senders[entity.Name] = sender
	}
	return &AzureServiceBusBroker{
		client:  client,
		senders: senders,
	}, nil
}

// AzureServiceBusBroker sends messages to Azure Service Bus topics or queues, one sender per entity.
type AzureServiceBusBroker struct {
	senders    map[string]*azservicebus.Sender
	senderLock sync.RWMutex
	client     *azservicebus.Client
}

// Close closes all senders and the client. Errors are collected and returned as a whole.
func (c *AzureServiceBusBroker) Close(ctx context.Context) error {
	log.Ctx(ctx).Debug().Msg("AzureServiceBus: closing...")
	c.senderLock.Lock()
	defer c.senderLock.Unlock()

	var errs []error
	for name, sender := range c.senders {
		if err := sender.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sender (entity=%s): %w", name, err))
		}
		delete(c.senders, name)
	}
	if err := c.client.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close client: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{
			errors.New("azure service bus: close() failures")},
			errs...,
		)...)
	}
	log.Ctx(ctx).Debug().Msg("AzureServiceBus: closed")
	return nil
}

// SendMessage sends a message to the entity. It returns an error if the entity wasn't configured or sending fails.
func (c *AzureServiceBusBroker) SendMessage(ctx context.Context, entity Entity, message *Message) error {
	c.senderLock.RLock()
	defer c.senderLock.RUnlock()
	sender, ok := c.senders[entity.Name]
	if !ok {
		return fmt.Errorf("AzureServiceBus: sender not found (entity=%s)", entity.Name)
	}
	serviceBusMsg := &azservicebus.Message{
		Body:          message.Body,
		ContentType:   &message.ContentType,
		CorrelationID: message.CorrelationID,
	}
	return sender.SendMessage(ctx, serviceBusMsg, nil)
}
