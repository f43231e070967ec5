package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhcw/wpas-referral-proxy/lib/audit"
	"github.com/dhcw/wpas-referral-proxy/lib/otel"
	"github.com/dhcw/wpas-referral-proxy/messaging"
	"github.com/dhcw/wpas-referral-proxy/profile"
	"github.com/dhcw/wpas-referral-proxy/referral"
	"github.com/dhcw/wpas-referral-proxy/wpas"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const envPrefix = "WPAS_"

type Config struct {
	// Public holds the configuration for the public interface.
	Public InterfaceConfig `koanf:"public"`
	// Profile holds the configuration of the FHIR profile validation of inbound Bundles.
	Profile profile.Config `koanf:"profile"`
	// Backend holds the configuration for calling the WPAS referral API.
	Backend wpas.Config `koanf:"backend"`
	// Mapping holds the fixed values of referrals sent to WPAS.
	Mapping   wpas.MappingConfig    `koanf:"mapping"`
	Headers   referral.HeaderConfig `koanf:"headers"`
	Messaging messaging.Config      `koanf:"messaging"`
	Audit     audit.Config          `koanf:"audit"`
	LogLevel  zerolog.Level         `koanf:"loglevel"`
	// StrictMode enforces production settings: profile validation can't be disabled and messages can't be sent over plain HTTP.
	StrictMode bool `koanf:"strictmode"`
	// OpenTelemetry holds the configuration for observability
	OpenTelemetry otel.Config `koanf:"opentelemetry"`
}

func (c Config) Validate() error {
	if c.Public.Address == "" {
		return errors.New("public address is not configured")
	}
	if c.Public.MaxBodySize < 0 {
		return errors.New("public max body size can't be negative")
	}
	if err := c.Profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile configuration: %w", err)
	}
	if c.StrictMode && !c.Profile.Enabled {
		return errors.New("profile validation can't be disabled in strict mode")
	}
	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	if err := c.Mapping.Validate(); err != nil {
		return fmt.Errorf("invalid mapping configuration: %w", err)
	}
	if c.Headers.AcceptVersion == "" {
		return errors.New("invalid headers configuration: accept version is not configured")
	}
	if err := c.Messaging.Validate(c.StrictMode); err != nil {
		return fmt.Errorf("invalid messaging configuration: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("invalid audit configuration: %w", err)
	}
	if err := c.OpenTelemetry.Validate(); err != nil {
		return fmt.Errorf("invalid OpenTelemetry configuration: %w", err)
	}
	return nil
}

// InterfaceConfig holds the configuration for an HTTP interface.
type InterfaceConfig struct {
	// Address holds the address to listen on.
	Address string `koanf:"address"`
	// MaxBodySize is the maximum size of a request body in bytes.
	MaxBodySize int64 `koanf:"maxbodysize"`
}

// LoadConfig loads the configuration from the environment.
func LoadConfig() (*Config, error) {
	result := DefaultConfig()
	err := loadConfigInto(&result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func loadConfigInto(target any) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key string, value string) (string, interface{}) {
		key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".", -1)
		if len(value) == 0 {
			return key, nil
		}
		sliceValues := splitWithEscaping(value, ",", "\\")
		for i, s := range sliceValues {
			sliceValues[i] = strings.TrimSpace(s)
		}
		var parsedValue any = sliceValues
		if len(sliceValues) == 1 {
			parsedValue = sliceValues[0]
		}
		return key, parsedValue
	}), nil)
	if err != nil {
		return err
	}
	return k.Unmarshal("", target)
}

func splitWithEscaping(s, separator, escape string) []string {
	s = strings.ReplaceAll(s, escape+separator, "\x00")
	tokens := strings.Split(s, separator)
	for i, token := range tokens {
		tokens[i] = strings.ReplaceAll(token, "\x00", separator)
	}
	return tokens
}

// DefaultConfig returns sensible, but not complete, default configuration values.
// The backend URL has to be configured.
func DefaultConfig() Config {
	return Config{
		LogLevel:   zerolog.InfoLevel,
		StrictMode: true,
		Public: InterfaceConfig{
			Address:     ":8080",
			MaxBodySize: 5 << 20,
		},
		Profile:       profile.DefaultConfig(),
		Backend:       wpas.DefaultConfig(),
		Mapping:       wpas.DefaultMappingConfig(),
		Headers:       referral.DefaultHeaderConfig(),
		Audit:         audit.DefaultConfig(),
		OpenTelemetry: otel.DefaultConfig(),
	}
}
