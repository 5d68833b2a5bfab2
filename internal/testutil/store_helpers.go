package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/store"
)

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

// SeedCredential stores a credential for owner that stays valid for an hour.
func SeedCredential(t *testing.T, st *store.Store, owner string) oauth.CredentialSet {
	t.Helper()
	creds := oauth.CredentialSet{
		AccessToken:  "access-" + owner,
		RefreshToken: "refresh-" + owner,
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	MustNoErr(t, st.SaveCredential(context.Background(), owner, creds), "SaveCredential")
	return creds
}

// SeedEmails saves emails for owner.
func SeedEmails(t *testing.T, st *store.Store, owner string, emails ...*mime.Email) {
	t.Helper()
	MustNoErr(t, st.SaveEmails(context.Background(), owner, emails), "SaveEmails")
}
