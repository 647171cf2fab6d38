package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/model"
)

var loginDisplayName string

var loginCmd = &cobra.Command{
	Use:   "login <provider>",
	Short: "Add a mail account via OAuth",
	Long: `Add an account by completing the provider's OAuth2 browser flow.

Supported providers: gmail, outlook.

Client credentials come from the environment:
  gmail:    MAILPOD_GOOGLE_CLIENT_ID, MAILPOD_GOOGLE_CLIENT_SECRET
  outlook:  MAILPOD_MICROSOFT_CLIENT_ID, MAILPOD_MICROSOFT_CLIENT_SECRET

Examples:
  mailpod login gmail
  mailpod login outlook --display-name "Work"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := model.Provider(args[0])
		if !provider.Valid() {
			return fmt.Errorf("unknown provider %q (want gmail or outlook)", args[0])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Starting browser authorization...")
		tokens, identity, err := a.oauth.Authorize(cmd.Context(), provider)
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}

		displayName := loginDisplayName
		if displayName == "" {
			displayName = identity.DisplayName
		}

		now := time.Now().UTC()
		account := model.Account{
			ID:          model.AccountID(provider, identity.Email),
			Email:       identity.Email,
			Provider:    provider,
			DisplayName: displayName,
			Tokens:      tokens,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		// Re-login of an existing account keeps its creation time.
		if existing, err := a.store.Account(account.ID); err == nil {
			account.CreatedAt = existing.CreatedAt
		}

		if err := a.store.SaveAccount(&account); err != nil {
			return fmt.Errorf("save account: %w", err)
		}

		fmt.Printf("\nAccount %s authorized.\n", account.Email)
		fmt.Println("Next step: mailpod sync", account.Email)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginDisplayName, "display-name", "", "Display name for the account (e.g., \"Work\", \"Personal\")")
	rootCmd.AddCommand(loginCmd)
}
