package store

import (
	"fmt"
	"time"

	"github.com/mailpod/mailpod/internal/crypto"
	"github.com/mailpod/mailpod/internal/model"
)

// accountRecord is the on-disk shape of an account, shared by both engines:
// the sqlite engine binds its fields to columns, the badger engine stores it
// as JSON. Token fields hold ciphertext; timestamps are unix milliseconds.
type accountRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Provider     string `json:"provider"`
	DisplayName  string `json:"display_name"`
	AccessToken  []byte `json:"access_token"`
	RefreshToken []byte `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func encodeAccount(svc *crypto.Service, a *model.Account) (*accountRecord, error) {
	access, err := svc.Encrypt(a.Tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := svc.Encrypt(a.Tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	return &accountRecord{
		ID:           a.ID,
		Email:        a.Email,
		Provider:     string(a.Provider),
		DisplayName:  a.DisplayName,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    toMillis(a.Tokens.ExpiresAt),
		TokenType:    a.Tokens.TokenType,
		CreatedAt:    toMillis(a.CreatedAt),
		UpdatedAt:    toMillis(a.UpdatedAt),
	}, nil
}

func decodeAccount(svc *crypto.Service, r *accountRecord) (*model.Account, error) {
	access, err := svc.Decrypt(r.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token for %s: %w", r.ID, err)
	}
	refresh, err := svc.Decrypt(r.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token for %s: %w", r.ID, err)
	}

	return &model.Account{
		ID:          r.ID,
		Email:       r.Email,
		Provider:    model.Provider(r.Provider),
		DisplayName: r.DisplayName,
		Tokens: model.OAuthTokens{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    fromMillis(r.ExpiresAt),
			TokenType:    r.TokenType,
		},
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// toMillis converts a time to unix milliseconds, with zero times stored as 0.
func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
