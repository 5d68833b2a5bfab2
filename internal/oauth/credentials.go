// Package oauth keeps Gmail OAuth credentials valid for the duration of a run.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// CredentialSet is an access/refresh token pair for one owner.
type CredentialSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// FromToken converts an oauth2 token.
func FromToken(t *oauth2.Token) CredentialSet {
	return CredentialSet{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
}

// Token converts the set back to an oauth2 token.
func (c CredentialSet) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}
}

// CredentialStore persists credential sets by owner. LoadCredential returns
// (nil, nil) when the owner has no stored credential.
type CredentialStore interface {
	LoadCredential(ctx context.Context, owner string) (*CredentialSet, error)
	SaveCredential(ctx context.Context, owner string, creds CredentialSet) error
}

// Reason classifies a CredentialError.
type Reason string

const (
	ReasonRefreshFailed Reason = "REFRESH_FAILED"
	ReasonPersistFailed Reason = "PERSIST_FAILED"
	ReasonMissing       Reason = "NO_CREDENTIAL"
)

// CredentialError is fatal to the run that produced it.
type CredentialError struct {
	Owner  string
	Reason Reason
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential %s for %s", e.Reason, e.Owner)
	}
	return fmt.Sprintf("credential %s for %s: %v", e.Reason, e.Owner, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// IsCredentialError reports whether err is, or wraps, a CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// ReadTokenFile reads an oauth2 token JSON file (as written by the oauth2
// library or a token export) into a CredentialSet.
func ReadTokenFile(path string) (*CredentialSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return ParseToken(data)
}

// ParseToken parses oauth2 token JSON. A refresh token is required.
func ParseToken(data []byte) (*CredentialSet, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("token has no refresh_token")
	}
	creds := FromToken(&tok)
	return &creds, nil
}
