package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailpod/mailpod/internal/model"
)

func newTestManager(t *testing.T, provider model.Provider, handler http.HandlerFunc) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("MAILPOD_GOOGLE_CLIENT_ID", "test-client")
	t.Setenv("MAILPOD_GOOGLE_CLIENT_SECRET", "test-secret")
	t.Setenv("MAILPOD_MICROSOFT_CLIENT_ID", "test-client")

	m := NewManager(nil)
	m.tokenURLs[provider] = srv.URL
	return m
}

func TestRefreshSuccess(t *testing.T) {
	m := newTestManager(t, model.ProviderGmail, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "test-client" {
			t.Errorf("client_id = %q", got)
		}
		fmt.Fprint(w, `{"access_token":"new-access","expires_in":3600,"token_type":"Bearer"}`)
	})

	before := time.Now()
	tokens, err := m.Refresh(context.Background(), model.ProviderGmail, "old-refresh")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if tokens.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q", tokens.AccessToken)
	}
	// The response carried no rotated refresh token, so the old one stays.
	if tokens.RefreshToken != "old-refresh" {
		t.Errorf("RefreshToken = %q, want old-refresh", tokens.RefreshToken)
	}
	if got := tokens.ExpiresAt.Sub(before); got < 59*time.Minute || got > 61*time.Minute {
		t.Errorf("ExpiresAt %v from now, want ~1h", got)
	}
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	m := newTestManager(t, model.ProviderOutlook, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"a","refresh_token":"rotated","expires_in":3600,"token_type":"Bearer"}`)
	})

	tokens, err := m.Refresh(context.Background(), model.ProviderOutlook, "old")
	if err != nil {
		t.Fatal(err)
	}
	if tokens.RefreshToken != "rotated" {
		t.Errorf("RefreshToken = %q, want rotated", tokens.RefreshToken)
	}
}

func TestRefreshInvalidGrant(t *testing.T) {
	m := newTestManager(t, model.ProviderGmail, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been revoked."}`)
	})

	_, err := m.Refresh(context.Background(), model.ProviderGmail, "revoked")
	if !errors.Is(err, ErrInvalidGrant) {
		t.Errorf("got %v, want ErrInvalidGrant", err)
	}
}

func TestRefreshServerError(t *testing.T) {
	m := newTestManager(t, model.ProviderGmail, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"server_error"}`)
	})

	_, err := m.Refresh(context.Background(), model.ProviderGmail, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrInvalidGrant) {
		t.Error("transient server error must not demand re-authorization")
	}
}

func TestRefreshUnknownProvider(t *testing.T) {
	m := NewManager(nil)
	if _, err := m.Refresh(context.Background(), model.Provider("yahoo"), "x"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestRefreshMissingClientID(t *testing.T) {
	t.Setenv("MAILPOD_GOOGLE_CLIENT_ID", "")
	m := NewManager(nil)
	if _, err := m.Refresh(context.Background(), model.ProviderGmail, "x"); err == nil {
		t.Error("expected error when client id env is unset")
	}
}

func TestCallbackHandlerStateMismatch(t *testing.T) {
	m := NewManager(nil)
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)
	h := m.newCallbackHandler("expected", codeChan, errChan)

	req := httptest.NewRequest(http.MethodGet, "/callback?state=wrong&code=abc", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case err := <-errChan:
		if err == nil {
			t.Error("expected state mismatch error")
		}
	default:
		t.Error("no error delivered for state mismatch")
	}
}

func TestCallbackHandlerDeliversCode(t *testing.T) {
	m := NewManager(nil)
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)
	h := m.newCallbackHandler("s1", codeChan, errChan)

	req := httptest.NewRequest(http.MethodGet, "/callback?state=s1&code=auth-code", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case code := <-codeChan:
		if code != "auth-code" {
			t.Errorf("code = %q", code)
		}
	default:
		t.Error("no code delivered")
	}
}
