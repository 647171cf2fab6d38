package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync <account>",
	Short: "Sync an account against its provider",
	Long: `Refresh the folder list and fetch the latest messages of the inbox.
With --all, every folder is fetched.

Examples:
  mailpod sync you@gmail.com
  mailpod sync you@gmail.com --all`,
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

		folders, err := a.reconciler.SyncFolders(cmd.Context(), account.ID)
		if err != nil {
			return fmt.Errorf("sync folders: %w", err)
		}
		fmt.Printf("Synced %d folder(s) for %s.\n", len(folders), account.Email)

		if !syncAll {
			msgs, err := a.reconciler.SyncMessages(cmd.Context(), account.ID, "inbox", true)
			if err != nil {
				return fmt.Errorf("sync inbox: %w", err)
			}
			fmt.Printf("Inbox: %d message(s) cached.\n", len(msgs))
			return nil
		}

		for _, f := range folders {
			msgs, err := a.reconciler.SyncMessages(cmd.Context(), account.ID, f.ID, true)
			if err != nil {
				return fmt.Errorf("sync %s: %w", f.Path, err)
			}
			fmt.Printf("%s: %d message(s) cached.\n", f.Path, len(msgs))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Fetch every folder, not just the inbox")
	rootCmd.AddCommand(syncCmd)
}
