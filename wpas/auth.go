package wpas

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// authenticatingTransport wraps the transport so that requests carry an OAuth2 access token, if configured.
func authenticatingTransport(ctx context.Context, config AuthConfig, base http.RoundTripper) (http.RoundTripper, error) {
	var tokenSource oauth2.TokenSource
	switch config.Type {
	case "", AuthNone:
		return base, nil
	case AuthClientCredentials:
		credentialsConfig := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		}
		tokenSource = credentialsConfig.TokenSource(ctx)
	case AuthAzure:
		credential, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create Azure credential for WPAS: %w", err)
		}
		tokenSource = oauth2.ReuseTokenSource(nil, azureTokenSource{
			credential: credential,
			scopes:     config.Scopes,
			timeout:    10 * time.Second,
		})
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", config.Type)
	}
	return &oauth2.Transport{Source: tokenSource, Base: base}, nil
}

var _ oauth2.TokenSource = azureTokenSource{}

// azureTokenSource acquires tokens for WPAS APIs that are protected by Microsoft Entra ID, using the managed identity.
type azureTokenSource struct {
	credential azcore.TokenCredential
	scopes     []string
	timeout    time.Duration
}

func (a azureTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	accessToken, err := a.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: a.scopes})
	if err != nil {
		return nil, fmt.Errorf("unable to get WPAS access token using Azure credential: %w", err)
	}
	return &oauth2.Token{
		AccessToken: accessToken.Token,
		TokenType:   "Bearer",
		Expiry:      accessToken.ExpiresOn,
	}, nil
}
