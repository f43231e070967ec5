package wpas

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"

	AuthNone              = "none"
	AuthClientCredentials = "clientcredentials"
	AuthAzure             = "azure"

	referralIDPlaceholder = "{referralId}"
)

// Config holds the connection settings of the WPAS API.
type Config struct {
	// URL is the base URL of the WPAS API.
	URL            string `koanf:"url"`
	CreateEndpoint string `koanf:"createendpoint"`
	CancelEndpoint string `koanf:"cancelendpoint"`
	// GetEndpoint must contain the {referralId} placeholder.
	GetEndpoint string `koanf:"getendpoint"`
	// Timeout bounds a complete call, including retries.
	Timeout time.Duration `koanf:"timeout"`
	// AttemptTimeout bounds a single HTTP attempt.
	AttemptTimeout time.Duration `koanf:"attempttimeout"`
	Retry          RetryConfig   `koanf:"retry"`
	Auth           AuthConfig    `koanf:"auth"`
	// SchemaDir is the directory holding the JSON schemas of the WPAS requests.
	// If empty, the schemas built into the binary are used.
	SchemaDir string `koanf:"schemadir"`
	// ReferralIDSystem is the identifier system of WPAS referral IDs in FHIR resources.
	ReferralIDSystem string `koanf:"referralidsystem"`
}

type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. 0 disables retrying.
	MaxRetries int           `koanf:"maxretries"`
	Delay      time.Duration `koanf:"delay"`
	MaxDelay   time.Duration `koanf:"maxdelay"`
	Backoff    string        `koanf:"backoff"`
}

type AuthConfig struct {
	Type         string   `koanf:"type"`
	TokenURL     string   `koanf:"tokenurl"`
	ClientID     string   `koanf:"clientid"`
	ClientSecret string   `koanf:"clientsecret"`
	Scopes       []string `koanf:"scopes"`
}

func DefaultConfig() Config {
	return Config{
		CreateEndpoint: "referrals",
		CancelEndpoint: "referrals/cancel",
		GetEndpoint:    "referrals/" + referralIDPlaceholder,
		Timeout:        30 * time.Second,
		AttemptTimeout: 10 * time.Second,
		Retry: RetryConfig{
			MaxRetries: 3,
			Delay:      500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
			Backoff:    BackoffExponential,
		},
		Auth: AuthConfig{
			Type: AuthNone,
		},
		ReferralIDSystem: "https://fhir.nhs.wales/Id/wpas-referral-id",
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is not configured")
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if !strings.Contains(c.GetEndpoint, referralIDPlaceholder) {
		return fmt.Errorf("get endpoint must contain %s", referralIDPlaceholder)
	}
	if c.Timeout <= 0 || c.AttemptTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.New("retry.maxretries can't be negative")
	}
	switch c.Retry.Backoff {
	case BackoffExponential, BackoffConstant:
	default:
		return fmt.Errorf("unsupported retry backoff: %s", c.Retry.Backoff)
	}
	switch c.Auth.Type {
	case "", AuthNone, AuthAzure:
	case AuthClientCredentials:
		if c.Auth.TokenURL == "" || c.Auth.ClientID == "" {
			return errors.New("auth.tokenurl and auth.clientid are required for client credentials")
		}
	default:
		return fmt.Errorf("unsupported auth type: %s", c.Auth.Type)
	}
	if c.ReferralIDSystem == "" {
		return errors.New("referralidsystem is not configured")
	}
	return nil
}

// MappingConfig holds the fixed business values of WPAS referrals, and how they are derived from the FHIR message.
type MappingConfig struct {
	MainSpecialty    string `koanf:"mainspecialty"`
	ReferrerPriority string `koanf:"referrerpriority"`
	ReferralSource   string `koanf:"referralsource"`
	WaitingListType  string `koanf:"waitinglisttype"`
	// ReasonForReferralMaxLength is the number of characters of the reason for referral that is sent to WPAS.
	ReasonForReferralMaxLength int `koanf:"reasonmaxlength"`
	// ReceivingOrganisationName is the name of the Organization in the Bundle that receives the referral.
	ReceivingOrganisationName string `koanf:"receivingorganisationname"`
	// SenderOrganisationName is the name of the Organization in the Bundle that sends the referral.
	SenderOrganisationName string `koanf:"senderorganisationname"`
}

func DefaultMappingConfig() MappingConfig {
	return MappingConfig{
		MainSpecialty:              "130",
		ReferrerPriority:           "2",
		ReferralSource:             "03",
		WaitingListType:            "OP",
		ReasonForReferralMaxLength: 8,
		ReceivingOrganisationName:  "Receiving/performing Organization",
		SenderOrganisationName:     "Sender Organization",
	}
}

func (c MappingConfig) Validate() error {
	if c.MainSpecialty == "" || c.ReferrerPriority == "" || c.ReferralSource == "" || c.WaitingListType == "" {
		return errors.New("mainspecialty, referrerpriority, referralsource and waitinglisttype are required")
	}
	if c.ReasonForReferralMaxLength <= 0 {
		return errors.New("reasonmaxlength must be positive")
	}
	if c.ReceivingOrganisationName == "" || c.SenderOrganisationName == "" {
		return errors.New("organisation names are required")
	}
	return nil
}
