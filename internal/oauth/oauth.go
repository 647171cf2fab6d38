// Package oauth provides OAuth2 authorization and token refresh for the
// supported mail providers.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mailpod/mailpod/internal/model"
)

// ErrInvalidGrant is returned when the provider rejects a refresh token.
// The account must go through the browser flow again.
var ErrInvalidGrant = errors.New("oauth: refresh token rejected")

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	microsoftAuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	microsoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	googleUserinfoURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
	microsoftGraphMeURL = "https://graph.microsoft.com/v1.0/me"
)

var googleScopes = []string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

var microsoftScopes = []string{
	"offline_access",
	"https://outlook.office.com/IMAP.AccessAsUser.All",
	"https://outlook.office.com/SMTP.Send",
	"User.Read",
}

// providerSpec binds a provider to its endpoints and credential env vars.
type providerSpec struct {
	authURL    string
	tokenURL   string
	profileURL string
	scopes     []string
	idEnv      string
	secretEnv  string
}

var providers = map[model.Provider]providerSpec{
	model.ProviderGmail: {
		authURL:    googleAuthURL,
		tokenURL:   googleTokenURL,
		profileURL: googleUserinfoURL,
		scopes:     googleScopes,
		idEnv:      "MAILPOD_GOOGLE_CLIENT_ID",
		secretEnv:  "MAILPOD_GOOGLE_CLIENT_SECRET",
	},
	model.ProviderOutlook: {
		authURL:    microsoftAuthURL,
		tokenURL:   microsoftTokenURL,
		profileURL: microsoftGraphMeURL,
		scopes:     microsoftScopes,
		idEnv:      "MAILPOD_MICROSOFT_CLIENT_ID",
		secretEnv:  "MAILPOD_MICROSOFT_CLIENT_SECRET",
	},
}

// Identity is the profile resolved after authorization.
type Identity struct {
	Email       string
	DisplayName string
}

// Manager runs authorization flows and refreshes access tokens.
type Manager struct {
	logger *slog.Logger
	client *http.Client

	// tokenURLs overrides the per-provider token endpoint; tests point it at
	// a local server. Empty entries fall through to the real endpoint.
	tokenURLs map[model.Provider]string
}

// NewManager creates an OAuth manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:    logger,
		client:    &http.Client{Timeout: 30 * time.Second},
		tokenURLs: make(map[model.Provider]string),
	}
}

func (m *Manager) tokenURL(provider model.Provider) string {
	if u := m.tokenURLs[provider]; u != "" {
		return u
	}
	return providers[provider].tokenURL
}

// config builds the oauth2 config for a provider from environment
// credentials.
func config(provider model.Provider) (*oauth2.Config, error) {
	spec, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	clientID := os.Getenv(spec.idEnv)
	if clientID == "" {
		return nil, fmt.Errorf("%s is not set", spec.idEnv)
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: os.Getenv(spec.secretEnv),
		Scopes:       spec.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spec.authURL,
			TokenURL: spec.tokenURL,
		},
	}, nil
}

// Refresh exchanges a refresh token for a fresh access token. When the
// provider omits a rotated refresh token from the response, the old one is
// carried forward.
func (m *Manager) Refresh(ctx context.Context, provider model.Provider, refreshToken string) (model.OAuthTokens, error) {
	spec, ok := providers[provider]
	if !ok {
		return model.OAuthTokens{}, fmt.Errorf("unknown provider %q", provider)
	}
	clientID := os.Getenv(spec.idEnv)
	if clientID == "" {
		return model.OAuthTokens{}, fmt.Errorf("%s is not set", spec.idEnv)
	}

	form := url.Values{
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	if secret := os.Getenv(spec.secretEnv); secret != "" {
		form.Set("client_secret", secret)
	}
	if provider == model.ProviderOutlook {
		form.Set("scope", strings.Join(spec.scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL(provider),
		strings.NewReader(form.Encode()))
	if err != nil {
		return model.OAuthTokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return model.OAuthTokens{}, fmt.Errorf("token endpoint: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int    `json:"expires_in"`
		TokenType        string `json:"token_type"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.OAuthTokens{}, fmt.Errorf("parse token response: %w", err)
	}

	if body.Error != "" || resp.StatusCode != http.StatusOK {
		if body.Error == "invalid_grant" {
			return model.OAuthTokens{}, fmt.Errorf("%w: %s", ErrInvalidGrant, body.ErrorDescription)
		}
		return model.OAuthTokens{}, fmt.Errorf("token endpoint %d: %s %s",
			resp.StatusCode, body.Error, body.ErrorDescription)
	}

	rotated := body.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	tokenType := body.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return model.OAuthTokens{
		AccessToken:  body.AccessToken,
		RefreshToken: rotated,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second).UTC(),
		TokenType:    tokenType,
	}, nil
}

const (
	redirectPort = "8089"
	callbackPath = "/callback"
)

// Authorize runs the browser flow for a provider and resolves the signed-in
// identity from the provider's profile endpoint.
func (m *Manager) Authorize(ctx context.Context, provider model.Provider) (model.OAuthTokens, Identity, error) {
	cfg, err := config(provider)
	if err != nil {
		return model.OAuthTokens{}, Identity{}, err
	}

	token, err := m.browserFlow(ctx, cfg)
	if err != nil {
		return model.OAuthTokens{}, Identity{}, err
	}

	identity, err := m.fetchIdentity(ctx, provider, token.AccessToken)
	if err != nil {
		return model.OAuthTokens{}, Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	return model.OAuthTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UTC(),
		TokenType:    token.TokenType,
	}, identity, nil
}

// newCallbackHandler returns an HTTP handler that processes the OAuth callback.
func (m *Manager) newCallbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != expectedState {
			errChan <- fmt.Errorf("state mismatch: possible CSRF attack")
			fmt.Fprintf(w, "Error: state mismatch")
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			fmt.Fprintf(w, "Error: no authorization code received")
			return
		}
		codeChan <- code
		fmt.Fprintf(w, "Authorization successful! You can close this window.")
	}
}

// browserFlow opens a browser for OAuth authorization and waits for the
// localhost callback.
func (m *Manager) browserFlow(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(stateBytes)

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle(callbackPath, m.newCallbackHandler(state, codeChan, errChan))
	server := &http.Server{Addr: "localhost:" + redirectPort, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	defer func() { _ = server.Shutdown(ctx) }()

	cfg.RedirectURL = "http://localhost:" + redirectPort + callbackPath
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Printf("Opening browser for authorization...\n")
	fmt.Printf("If browser doesn't open, visit:\n%s\n\n", authURL)

	if err := openBrowser(authURL); err != nil {
		m.logger.Warn("failed to open browser", "error", err)
	}

	select {
	case code := <-codeChan:
		return cfg.Exchange(ctx, code)
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchIdentity asks the provider's profile endpoint who just signed in.
func (m *Manager) fetchIdentity(ctx context.Context, provider model.Provider, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, providers[provider].profileURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.client.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("profile endpoint returned %d", resp.StatusCode)
	}

	switch provider {
	case model.ProviderOutlook:
		var profile struct {
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
			DisplayName       string `json:"displayName"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
			return Identity{}, err
		}
		email := profile.Mail
		if email == "" {
			email = profile.UserPrincipalName
		}
		return Identity{Email: strings.ToLower(email), DisplayName: profile.DisplayName}, nil
	default:
		var profile struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
			return Identity{}, err
		}
		return Identity{Email: strings.ToLower(profile.Email), DisplayName: profile.Name}, nil
	}
}

// openBrowser opens the default browser to the given URL.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
