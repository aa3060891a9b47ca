package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// claudeOAuthEndpoint is Anthropic's OAuth token endpoint, used by the
// Claude CLI's device-code login flow. Only token refresh is implemented
// here; the interactive authorize/PKCE exchange (spec §9 Secret Store is
// limited to static per-user secrets, not OAuth flows) is not implemented.
var claudeOAuthEndpoint = oauth2.Endpoint{
	TokenURL: "https://console.anthropic.com/v1/oauth/token",
}

// NewClaudeOAuthTokenSource builds a refreshing oauth2.TokenSource from a
// long-lived refresh token, for use with NewClaudeProviderOAuth.
func NewClaudeOAuthTokenSource(clientID, refreshToken string) oauth2.TokenSource {
	cfg := &oauth2.Config{
		ClientID: clientID,
		Endpoint: claudeOAuthEndpoint,
	}
	token := &oauth2.Token{RefreshToken: refreshToken}
	return cfg.TokenSource(context.Background(), token)
}
