// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package password generates the per-credential passwords embedded in V1
// AuthIds. Each character is drawn from one of four classes (lowercase
// letters, digits, uppercase letters, and the symbols !-_.), and consecutive
// characters never share a class. The output is safe as a file-name suffix
// and carries enough entropy that the password doubles as the encryption
// key material for the stored entry.
package password

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"sync"
)

// DefaultLength is the length of generated passwords.
const DefaultLength = 32

// Character classes. Consecutive output characters come from different
// classes, which rules out long same-class runs.
var classes = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"0123456789",
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"!-_.",
}

// alphabet is the concatenation of all classes, indexed by classOf.
var alphabet = func() string {
	var s string
	for _, c := range classes {
		s += c
	}
	return s
}()

var (
	// rngMu serializes reads from the shared buffered RNG.
	rngMu sync.Mutex
	rng   = bufio.NewReader(rand.Reader)
)

// classOf returns the class index for a position in the alphabet.
func classOf(idx int) int {
	for class, c := range classes {
		if idx < len(c) {
			return class
		}
		idx -= len(c)
	}
	return -1
}

// Generate returns a DefaultLength-character password.
func Generate() (string, error) {
	return GenerateN(DefaultLength)
}

// GenerateN returns an n-character password obeying the class-alternation
// rule. Candidate characters are drawn by rejection sampling so every
// alphabet character is equally likely.
func GenerateN(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("password length must be positive, got %d", n)
	}

	rngMu.Lock()
	defer rngMu.Unlock()

	out := make([]byte, 0, n)
	prevClass := -1
	// Largest multiple of len(alphabet) that fits in a byte; higher draws
	// are rejected to avoid modulo bias.
	limit := byte(256 / len(alphabet) * len(alphabet))

	for len(out) < n {
		b, err := rng.ReadByte()
		if err != nil {
			return "", fmt.Errorf("read random byte: %w", err)
		}
		if b >= limit {
			continue
		}
		idx := int(b) % len(alphabet)
		class := classOf(idx)
		if class == prevClass {
			continue
		}
		out = append(out, alphabet[idx])
		prevClass = class
	}
	return string(out), nil
}
