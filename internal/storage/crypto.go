// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryptingFailed is the single failure mode for reading an encrypted
// blob. Wrong password, truncated file, corrupt ciphertext, and a missing
// file all surface as this error so the caller cannot distinguish whether a
// key exists.
var ErrDecryptingFailed = errors.New("decrypting failed")

// magic identifies the sealed-blob container format.
var magic = []byte("OB1\x00")

// derivationContext binds derived keys to this container format.
const derivationContext = "oauthbridge-blob-v1"

// deriveKey derives a 256-bit AES key from the password using HKDF-SHA256.
func deriveKey(password string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(password), nil, []byte(derivationContext))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// newAEAD builds the AES-256-GCM cipher for the given password.
func newAEAD(password string) (cipher.AEAD, error) {
	key, err := deriveKey(password)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return aead, nil
}

// Seal encrypts plaintext with a key derived from password. The output is
// magic || nonce || ciphertext, with the magic bytes bound as additional
// authenticated data.
func Seal(password string, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(password)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, magic), nil
}

// Open decrypts data produced by Seal. Every failure returns
// ErrDecryptingFailed; the underlying cause is deliberately not exposed.
func Open(password string, data []byte) ([]byte, error) {
	aead, err := newAEAD(password)
	if err != nil {
		return nil, ErrDecryptingFailed
	}

	nonceSize := aead.NonceSize()
	if len(data) < len(magic)+nonceSize+aead.Overhead() {
		return nil, ErrDecryptingFailed
	}
	for i := range magic {
		if data[i] != magic[i] {
			return nil, ErrDecryptingFailed
		}
	}

	nonce := data[len(magic) : len(magic)+nonceSize]
	ciphertext := data[len(magic)+nonceSize:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, magic)
	if err != nil {
		return nil, ErrDecryptingFailed
	}
	return plaintext, nil
}
