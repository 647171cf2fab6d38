package bridge

import (
	"errors"
	"net/smtp"

	"github.com/emersion/go-sasl"
)

// xoauth2Initial builds the SASL XOAUTH2 initial response:
// user=<email>^Aauth=Bearer <token>^A^A
func xoauth2Initial(username, token string) []byte {
	return []byte("user=" + username + "\x01auth=Bearer " + token + "\x01\x01")
}

// xoauth2Client is the XOAUTH2 mechanism for IMAP. go-sasl ships OAUTHBEARER
// but gmail and outlook IMAP both speak the older XOAUTH2.
type xoauth2Client struct {
	username string
	token    string
	done     bool
}

func newXoauth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	return "XOAUTH2", xoauth2Initial(c.username, c.token), nil
}

// Next handles the error challenge: on auth failure the server sends a JSON
// blob and expects an empty response before it returns NO.
func (c *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if c.done {
		return nil, errors.New("xoauth2: unexpected server challenge")
	}
	c.done = true
	return []byte{}, nil
}

// xoauth2SMTPAuth is the same mechanism for net/smtp.
type xoauth2SMTPAuth struct {
	username string
	token    string
}

func newXoauth2SMTPAuth(username, token string) smtp.Auth {
	return &xoauth2SMTPAuth{username: username, token: token}
}

func (a *xoauth2SMTPAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, errors.New("xoauth2: refusing to send token without TLS")
	}
	return "XOAUTH2", xoauth2Initial(a.username, a.token), nil
}

func (a *xoauth2SMTPAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// Error challenge; empty response lets the server fail the exchange.
		return []byte{}, nil
	}
	return nil, nil
}
