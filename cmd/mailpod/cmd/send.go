package cmd

import (
	"fmt"
	"io"
	stdmime "mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mailpod/mailpod/internal/bridge"
	"github.com/mailpod/mailpod/internal/model"
)

var (
	sendTo      []string
	sendCc      []string
	sendBcc     []string
	sendSubject string
	sendBody    string
	sendHTML    string
	sendAttach  []string
	sendReplyTo string
)

var sendCmd = &cobra.Command{
	Use:   "send <account>",
	Short: "Send a message",
	Long: `Send a message through the account's SMTP endpoint. The body comes
from --body, or from stdin when --body is omitted.

Examples:
  mailpod send you@gmail.com --to a@b.com --subject "Hi" --body "Hello"
  echo "Hello" | mailpod send you@gmail.com --to a@b.com --subject "Hi"
  mailpod send you@gmail.com --to a@b.com --subject "Report" --attach report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(sendTo) == 0 {
			return fmt.Errorf("at least one --to recipient is required")
		}

		body := sendBody
		if body == "" && sendHTML == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read body from stdin: %w", err)
			}
			body = string(data)
		}

		attachments, err := loadAttachments(sendAttach)
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := resolveAccount(a.store, args[0])
		if err != nil {
			return err
		}

		out := bridge.Outgoing{
			To:          toAddresses(sendTo),
			Cc:          toAddresses(sendCc),
			Bcc:         toAddresses(sendBcc),
			Subject:     sendSubject,
			Text:        body,
			HTML:        sendHTML,
			InReplyTo:   sendReplyTo,
			Attachments: attachments,
		}
		if err := a.reconciler.Send(cmd.Context(), account.ID, out); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Println("Sent.")
		return nil
	},
}

func toAddresses(raw []string) []model.Address {
	out := make([]model.Address, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Address{Address: r})
	}
	return out
}

func loadAttachments(paths []string) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", p, err)
		}
		name := filepath.Base(p)
		contentType := stdmime.TypeByExtension(filepath.Ext(p))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, model.Attachment{
			Filename:    name,
			ContentType: contentType,
			Size:        len(content),
			Content:     content,
		})
	}
	return out, nil
}

func init() {
	sendCmd.Flags().StringSliceVar(&sendTo, "to", nil, "Recipient address (repeatable)")
	sendCmd.Flags().StringSliceVar(&sendCc, "cc", nil, "Cc address (repeatable)")
	sendCmd.Flags().StringSliceVar(&sendBcc, "bcc", nil, "Bcc address (repeatable)")
	sendCmd.Flags().StringVar(&sendSubject, "subject", "", "Message subject")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "Plain text body (default: stdin)")
	sendCmd.Flags().StringVar(&sendHTML, "html", "", "HTML body")
	sendCmd.Flags().StringSliceVar(&sendAttach, "attach", nil, "File to attach (repeatable)")
	sendCmd.Flags().StringVar(&sendReplyTo, "in-reply-to", "", "Message-ID this message replies to")
	rootCmd.AddCommand(sendCmd)
}
