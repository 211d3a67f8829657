package tdx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the TDX OpenID Connect token endpoint.
const DefaultTokenURL = "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"

// Credentials configures the client-credentials grant against TDX.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client
}

// NewTokenSource returns a token source that performs the OAuth 2.0
// client-credentials grant on first use and reuses the token until it
// expires. ctx is used for every token request the source makes.
func NewTokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	if strings.TrimSpace(creds.ClientID) == "" {
		return nil, fmt.Errorf("tdx: ClientID is required")
	}
	if strings.TrimSpace(creds.ClientSecret) == "" {
		return nil, fmt.Errorf("tdx: ClientSecret is required")
	}
	tokenURL := strings.TrimSpace(creds.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if ctx == nil {
		ctx = context.Background()
	}
	httpClient := creds.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx), nil
}
