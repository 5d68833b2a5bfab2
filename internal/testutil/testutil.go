// Package testutil provides test helpers for glider tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - builders.go: canonical email builders
//
// Gmail-shaped raw messages are built with the email subpackage.
package testutil
