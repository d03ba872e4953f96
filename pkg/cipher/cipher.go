// Package cipher provides optional at-rest protection for stored credentials.
// Encryption is AES-256-CTR with a key derived by hashing the secret; the
// output is a textual "iv:ciphertext" pair in hex. There is no authentication
// tag: the scheme protects confidentiality only and does not detect
// tampering.
package cipher

import (
	"crypto/aes"
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCiphertext is returned by Decrypt when the input does not have
// the expected iv:ciphertext shape.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encrypt encrypts plaintext under a key derived from secret. A fresh random
// IV is generated per call, so encrypting the same plaintext twice yields
// different ciphertext.
func Encrypt(plaintext, secret string) (string, error) {
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	out := make([]byte, len(plaintext))
	stdcipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Input that does not split into exactly two hex
// segments fails with ErrMalformedCiphertext.
func Decrypt(ciphertext, secret string) (string, error) {
	parts := strings.Split(ciphertext, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: expected 2 segments, got %d", ErrMalformedCiphertext, len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decoding iv: %v", ErrMalformedCiphertext, err)
	}
	if len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedCiphertext, aes.BlockSize, len(iv))
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decoding payload: %v", ErrMalformedCiphertext, err)
	}

	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	out := make([]byte, len(data))
	stdcipher.NewCTR(block, iv).XORKeyStream(out, data)

	return string(out), nil
}

// deriveKey hashes the secret into a fixed-size AES-256 key.
func deriveKey(secret string) []byte {
	key := sha256.Sum256([]byte(secret))
	return key[:]
}
