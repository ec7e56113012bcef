package runtime

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"

	"github.com/proteinlens/proteinlens/internal/config"
)

const (
	derivedKeyLen    = 32
	pbkdf2Iterations = 210_000
)

// resolveStorageKey turns the object-store encryption settings into a key.
// An explicit key wins over a passphrase; with neither set there is no
// encryption and the result is nil.
func resolveStorageKey(cfg config.ObjectStoreConfig) ([]byte, error) {
	if cfg.EncryptionKey != "" {
		return parseEncryptionKey(cfg.EncryptionKey)
	}
	if cfg.EncryptionPassphrase != "" {
		return deriveKey(cfg.EncryptionPassphrase, cfg.EncryptionSalt), nil
	}
	return nil, nil
}

func parseEncryptionKey(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("missing encryption key")
	}

	// raw bytes
	if l := len(value); l == 16 || l == 24 || l == 32 {
		return []byte(value), nil
	}

	// base64
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		if l := len(decoded); l == 16 || l == 24 || l == 32 {
			return decoded, nil
		}
	}

	// hex
	if decoded, err := hex.DecodeString(value); err == nil {
		if l := len(decoded); l == 16 || l == 24 || l == 32 {
			return decoded, nil
		}
	}

	return nil, errors.New("must be raw 16/24/32 byte string or base64/hex encoding of that length")
}

// deriveKey stretches a passphrase into an AES-256 key. The salt is
// configuration, not a secret; it keeps derived keys distinct across
// deployments sharing a passphrase.
func deriveKey(passphrase, salt string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, derivedKeyLen, sha256.New)
}
