package card

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	encryptionInfo  = "bankcards/card-data/v1"
	fingerprintInfo = "bankcards/card-fingerprint/v1"
)

// Cipher encrypts card secrets for storage and derives a keyed fingerprint
// of card numbers for uniqueness lookups. Both keys derive from one
// managed master key.
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// NewCipher derives the encryption and fingerprint keys from masterKey.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	encKey, err := deriveKey(masterKey, encryptionInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	indexKey, err := deriveKey(masterKey, fingerprintInfo, 32)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return &Cipher{aead: aead, indexKey: indexKey}, nil
}

// Seal encrypts plaintext under a fresh random nonce. The nonce is prepended.
func (c *Cipher) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open reverses Seal.
func (c *Cipher) Open(sealed []byte) (string, error) {
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt card data: %w", err)
	}
	return string(plaintext), nil
}

// Fingerprint is a deterministic keyed digest of a card number.
func (c *Cipher) Fingerprint(number string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(number))
	return hex.EncodeToString(mac.Sum(nil))
}

func deriveKey(master []byte, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return key, nil
}
