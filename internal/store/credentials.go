package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/wesm/glider/internal/oauth"
)

var _ oauth.CredentialStore = (*Store)(nil)

// LoadCredential returns the owner's credential set, or nil if none is stored.
func (s *Store) LoadCredential(ctx context.Context, owner string) (*oauth.CredentialSet, error) {
	var creds oauth.CredentialSet
	var expiry sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, expiry
		FROM credentials
		WHERE owner = ?
	`, owner).Scan(&creds.AccessToken, &creds.RefreshToken, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "load credential for %s", owner)
	}
	if expiry.Valid {
		creds.Expiry = expiry.Time
	}
	return &creds, nil
}

// SaveCredential upserts the owner's credential set.
func (s *Store) SaveCredential(ctx context.Context, owner string, creds oauth.CredentialSet) error {
	var expiry sql.NullTime
	if !creds.Expiry.IsZero() {
		expiry = sql.NullTime{Time: creds.Expiry.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (owner, access_token, refresh_token, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, owner, creds.AccessToken, creds.RefreshToken, expiry, s.now().UTC())
	return eris.Wrapf(err, "save credential for %s", owner)
}

// DeleteCredential removes the owner's credential. Deleting a missing
// credential is not an error.
func (s *Store) DeleteCredential(ctx context.Context, owner string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE owner = ?`, owner)
	return eris.Wrapf(err, "delete credential for %s", owner)
}

// ListOwners returns every owner with a stored credential, sorted.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner FROM credentials ORDER BY owner`)
	if err != nil {
		return nil, eris.Wrap(err, "list owners")
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, eris.Wrap(err, "scan owner")
		}
		owners = append(owners, owner)
	}
	return owners, eris.Wrap(rows.Err(), "iterate owners")
}
