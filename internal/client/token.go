package client

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Issuer fetches access tokens from an OAuth2 token endpoint using the client
// credentials grant. The issuer must sign tokens with the server's
// auth.secret.
type Issuer struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Token returns a fresh access token.
func (i *Issuer) Token(ctx context.Context) (string, error) {
	if i.TokenURL == "" || i.ClientID == "" {
		return "", errors.New("token URL and client ID are required")
	}
	cfg := clientcredentials.Config{
		ClientID:     i.ClientID,
		ClientSecret: i.ClientSecret,
		TokenURL:     i.TokenURL,
		Scopes:       i.Scopes,
	}
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token from %s: %w", i.TokenURL, err)
	}
	return tok.AccessToken, nil
}
