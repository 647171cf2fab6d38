package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/model"
)

var accountsJSON bool

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List configured accounts",
	Long: `List all accounts added to mailpod.

Examples:
  mailpod accounts
  mailpod accounts --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.store.Accounts()
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}

		if len(accounts) == 0 {
			fmt.Println("No accounts found. Use 'mailpod login <provider>' to add one.")
			return nil
		}

		if accountsJSON {
			return outputAccountsJSON(accounts)
		}
		outputAccountsTable(accounts)
		return nil
	},
}

func outputAccountsTable(accounts []model.Account) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tPROVIDER\tDISPLAY NAME")
	fmt.Fprintln(w, "──\t─────\t────────\t────────────")

	for _, acc := range accounts {
		displayName := acc.DisplayName
		if displayName == "" {
			displayName = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", acc.ID, acc.Email, acc.Provider, displayName)
	}

	w.Flush()
	fmt.Printf("\n%d account(s)\n", len(accounts))
}

func outputAccountsJSON(accounts []model.Account) error {
	output := make([]map[string]any, len(accounts))
	for i, acc := range accounts {
		output[i] = map[string]any{
			"id":           acc.ID,
			"email":        acc.Email,
			"provider":     acc.Provider,
			"display_name": acc.DisplayName,
			"created_at":   acc.CreatedAt,
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

var removeAccountYes bool

var removeAccountCmd = &cobra.Command{
	Use:   "remove-account <account>",
	Short: "Remove an account and its cached mail",
	Long: `Remove an account by email or ID. All cached folders, messages and
attachments of the account are deleted; the provider's mailbox is untouched.

Examples:
  mailpod remove-account you@gmail.com
  mailpod remove-account you@gmail.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := resolveAccount(a.store, args[0])
		if err != nil {
			return err
		}

		if !removeAccountYes {
			fmt.Printf("Remove %s and all locally cached mail? [y/N] ", account.Email)
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := a.store.DeleteAccount(account.ID); err != nil {
			return fmt.Errorf("remove account: %w", err)
		}
		fmt.Printf("Removed %s.\n", account.Email)
		return nil
	},
}

func init() {
	accountsCmd.Flags().BoolVar(&accountsJSON, "json", false, "Output as JSON")
	removeAccountCmd.Flags().BoolVar(&removeAccountYes, "yes", false, "Skip confirmation prompt")
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(removeAccountCmd)
}
