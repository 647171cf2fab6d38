// Package crypto encrypts OAuth credentials before they are written to the
// local store. Two interchangeable backends are supported; every blob starts
// with a one-byte algorithm tag so Decrypt never depends on in-process state.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"
)

// Backend identifies the cipher used to produce a blob. The value doubles as
// the on-disk tag byte.
type Backend byte

const (
	// BackendSecretbox is NaCl secretbox with a blake2b-derived key.
	BackendSecretbox Backend = 0x01
	// BackendAESGCM is AES-256-GCM with a PBKDF2-derived key.
	BackendAESGCM Backend = 0x02
)

// Build-embedded key material. Acceptable for a single-user local store;
// the store never leaves the device.
const (
	passphrase       = "mailpod-secret-key-v1"
	pbkdf2Salt       = "mailpod-pbkdf2-salt-v1"
	pbkdf2Iterations = 100_000
)

// ErrDecryptFailed indicates a corrupted blob or unknown algorithm tag.
var ErrDecryptFailed = errors.New("crypto: decryption failed")

// ParseBackend maps a configuration name to a Backend. The empty string
// selects secretbox.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "secretbox":
		return BackendSecretbox, nil
	case "aesgcm":
		return BackendAESGCM, nil
	}
	return 0, fmt.Errorf("crypto: unknown backend %q (want secretbox or aesgcm)", name)
}

// Service encrypts and decrypts credential strings. Encrypt always uses the
// configured backend; Decrypt dispatches on the blob's tag byte, so blobs
// written by either backend remain readable.
type Service struct {
	backend Backend
	boxKey  [32]byte
	gcm     cipher.AEAD
}

// New creates a Service encrypting with the given backend.
func New(backend Backend) (*Service, error) {
	if backend != BackendSecretbox && backend != BackendAESGCM {
		return nil, fmt.Errorf("crypto: unknown backend 0x%02x", byte(backend))
	}

	s := &Service{backend: backend}
	s.boxKey = blake2b.Sum256([]byte(passphrase))

	key := pbkdf2.Key([]byte(passphrase), []byte(pbkdf2Salt), pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: init AES: %w", err)
	}
	s.gcm, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: init GCM: %w", err)
	}

	return s, nil
}

// Encrypt encrypts plaintext with the configured backend. The result is
// tag || nonce || ciphertext.
func (s *Service) Encrypt(plaintext string) ([]byte, error) {
	switch s.backend {
	case BackendSecretbox:
		var nonce [24]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return nil, fmt.Errorf("crypto: read nonce: %w", err)
		}
		out := make([]byte, 0, 1+len(nonce)+len(plaintext)+secretbox.Overhead)
		out = append(out, byte(BackendSecretbox))
		out = append(out, nonce[:]...)
		return secretbox.Seal(out, []byte(plaintext), &nonce, &s.boxKey), nil

	case BackendAESGCM:
		nonce := make([]byte, s.gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, fmt.Errorf("crypto: read nonce: %w", err)
		}
		out := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.gcm.Overhead())
		out = append(out, byte(BackendAESGCM))
		out = append(out, nonce...)
		return s.gcm.Seal(out, nonce, []byte(plaintext), nil), nil
	}

	return nil, fmt.Errorf("crypto: unknown backend 0x%02x", byte(s.backend))
}

// Decrypt decrypts a blob produced by Encrypt under either backend.
func (s *Service) Decrypt(blob []byte) (string, error) {
	if len(blob) < 2 {
		return "", ErrDecryptFailed
	}

	switch Backend(blob[0]) {
	case BackendSecretbox:
		if len(blob) < 1+24+secretbox.Overhead {
			return "", ErrDecryptFailed
		}
		var nonce [24]byte
		copy(nonce[:], blob[1:25])
		plain, ok := secretbox.Open(nil, blob[25:], &nonce, &s.boxKey)
		if !ok {
			return "", ErrDecryptFailed
		}
		return string(plain), nil

	case BackendAESGCM:
		ns := s.gcm.NonceSize()
		if len(blob) < 1+ns+s.gcm.Overhead() {
			return "", ErrDecryptFailed
		}
		plain, err := s.gcm.Open(nil, blob[1:1+ns], blob[1+ns:], nil)
		if err != nil {
			return "", ErrDecryptFailed
		}
		return string(plain), nil
	}

	return "", ErrDecryptFailed
}
