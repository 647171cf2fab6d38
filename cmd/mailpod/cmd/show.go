package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/mime"
	"github.com/mailpod/mailpod/internal/model"
)

var showCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Show a cached message",
	Long: `Print a cached message: headers, body text and attachment list.
HTML-only messages are rendered as plain text.

Example:
  mailpod show gmail-1a2b3c4d5e6f7081-9f8e7d6c5b4a3210`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.store.Message(args[0])
		if err != nil {
			return err
		}
		atts, err := a.store.AttachmentsByMessage(m.ID)
		if err != nil {
			return err
		}

		fmt.Printf("From:    %s\n", formatAddress(m.From))
		fmt.Printf("To:      %s\n", formatAddresses(m.To))
		if len(m.Cc) > 0 {
			fmt.Printf("Cc:      %s\n", formatAddresses(m.Cc))
		}
		fmt.Printf("Date:    %s\n", m.Date.Local().Format("Mon, 2 Jan 2006 15:04"))
		fmt.Printf("Subject: %s\n", m.Subject)
		fmt.Println()

		body := m.Text
		if body == "" && m.HTML != "" {
			body = mime.StripHTML(m.HTML)
		}
		fmt.Println(body)

		if len(atts) > 0 {
			fmt.Printf("\nAttachments:\n")
			for _, att := range atts {
				fmt.Printf("  %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
			}
		}
		return nil
	},
}

func formatAddress(a model.Address) string {
	if a.Name != "" {
		return fmt.Sprintf("%s <%s>", a.Name, a.Address)
	}
	return a.Address
}

func formatAddresses(addrs []model.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = formatAddress(a)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(showCmd)
}
