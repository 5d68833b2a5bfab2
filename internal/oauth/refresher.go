package oauth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// Scopes requested for ingestion.
var Scopes = []string{gmailapi.GmailReadonlyScope}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuth2Refresher refreshes tokens against an oauth2 token endpoint.
type OAuth2Refresher struct {
	config *oauth2.Config
}

// NewRefresher wraps an oauth2 config.
func NewRefresher(config *oauth2.Config) *OAuth2Refresher {
	return &OAuth2Refresher{config: config}
}

// NewRefresherFromFile loads a Google client_secret.json (installed or web).
func NewRefresherFromFile(clientSecretsPath string) (*OAuth2Refresher, error) {
	data, err := os.ReadFile(clientSecretsPath)
	if err != nil {
		return nil, fmt.Errorf("read client secrets: %w", err)
	}
	config, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secrets: %w", err)
	}
	return NewRefresher(config), nil
}

// NewRefresherFromClient builds a refresher from a Google client id and secret.
func NewRefresherFromClient(clientID, clientSecret string) *OAuth2Refresher {
	return NewRefresher(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	})
}

// Refresh performs a refresh_token grant.
func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return tok, nil
}
