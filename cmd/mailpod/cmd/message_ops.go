package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var markReadUnread bool

var markReadCmd = &cobra.Command{
	Use:   "mark-read <account> <message-id>",
	Short: "Mark a message read or unread",
	Long: `Flip the read flag of a message on the provider, then in the cache.

Examples:
  mailpod mark-read you@gmail.com <message-id>
  mailpod mark-read you@gmail.com <message-id> --unread`,
	Args: cobra.ExactArgs(2),
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
		if err := a.reconciler.MarkRead(cmd.Context(), account.ID, args[1], !markReadUnread); err != nil {
			return err
		}
		if markReadUnread {
			fmt.Println("Marked unread.")
		} else {
			fmt.Println("Marked read.")
		}
		return nil
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <account> <message-id> <folder>",
	Short: "Move a message to another folder",
	Long: `Move a message on the provider, then update the cache. The folder
argument accepts a folder ID, a path, or a virtual name (inbox, sent,
drafts, archive).

Example:
  mailpod move you@gmail.com <message-id> archive`,
	Args: cobra.ExactArgs(3),
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
		if err := a.reconciler.Move(cmd.Context(), account.ID, args[1], args[2]); err != nil {
			return err
		}
		fmt.Printf("Moved to %s.\n", args[2])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <account> <message-id>",
	Short: "Delete a message",
	Long: `Delete a message on the provider, then drop it from the cache.

Example:
  mailpod delete you@gmail.com <message-id>`,
	Args: cobra.ExactArgs(2),
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
		if err := a.reconciler.Delete(cmd.Context(), account.ID, args[1]); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

func init() {
	markReadCmd.Flags().BoolVar(&markReadUnread, "unread", false, "Mark unread instead of read")
	rootCmd.AddCommand(markReadCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(deleteCmd)
}
