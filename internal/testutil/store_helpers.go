package testutil

import (
	"testing"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/store"
)

// NewCrypto creates a crypto service for tests, failing the test on error.
func NewCrypto(t *testing.T, backend crypto.Backend) *crypto.Service {
	t.Helper()
	svc, err := crypto.New(backend)
	if err != nil {
		t.Fatalf("new crypto service: %v", err)
	}
	return svc
}

// NewTestStore creates a temporary database for testing.
// The database is automatically cleaned up when the test completes.
func NewTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := store.Open(store.Options{
		Dir:    t.TempDir(),
		Crypto: NewCrypto(t, crypto.BackendSecretbox),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}
