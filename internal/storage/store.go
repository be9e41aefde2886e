// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package storage persists V1 credentials as one encrypted file per key id.
//
// Each file is named by the 32-hex-character key id and holds the JSON-
// serialized Entry sealed with AES-256-GCM under a key derived from the
// per-entry password (the second half of the V1 AuthId). Writes go through
// a temp file and rename so a reader never observes a partial blob; a
// partial or tampered blob fails authentication and reads as
// ErrDecryptingFailed.
//
// The store is not transactional across keys and needs no file locking:
// each AuthId is held by a single client.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/oauthbridge/internal/logging"
)

// Entry is the persisted payload referenced by a V1 AuthId.
type Entry struct {
	// ServiceID is the catalog id of the provider that issued the tokens.
	ServiceID string `json:"service_id"`

	// Expires is when the stored access token stops being valid.
	Expires time.Time `json:"expires"`

	// AccessToken is the most recent access token, if any.
	AccessToken string `json:"access_token"`

	// RefreshToken is the long-lived refresh credential.
	RefreshToken string `json:"refresh_token"`

	// Blob is the raw provider token response, kept verbatim.
	Blob string `json:"blob"`
}

// Store is a filesystem key→blob store with encrypted-at-rest payloads.
type Store struct {
	dir string
}

// ParseLocation resolves the STORAGE setting into a directory path.
// Accepts a plain path or a file:// URL (the pathmapped query flag used by
// container deployments is tolerated and ignored).
func ParseLocation(loc string) (string, error) {
	if loc == "" {
		return "", nil
	}
	if strings.HasPrefix(loc, "file://") {
		u, err := url.Parse(loc)
		if err != nil {
			return "", fmt.Errorf("parse storage url: %w", err)
		}
		p := u.Path
		if u.Host != "" {
			// file://relative/path parses the first segment as host.
			p = "/" + u.Host + u.Path
			if u.Query().Get("pathmapped") == "true" {
				p = strings.TrimPrefix(p, "/")
			}
		}
		return p, nil
	}
	return loc, nil
}

// New creates (if needed) the storage directory and returns the store.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory not configured")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// path maps a key id to its file, rejecting anything that is not a plain
// 32-hex-character name so a crafted AuthId cannot escape the directory.
func (s *Store) path(keyID string) (string, error) {
	if len(keyID) != 32 {
		return "", ErrDecryptingFailed
	}
	for i := 0; i < len(keyID); i++ {
		c := keyID[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", ErrDecryptingFailed
		}
	}
	return filepath.Join(s.dir, keyID), nil
}

// Put serializes the entry and writes it sealed under password, truncating
// any prior content. Used for both create and update.
func (s *Store) Put(ctx context.Context, keyID, password string, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(keyID)
	if err != nil {
		return fmt.Errorf("invalid key id")
	}

	plaintext, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	sealed, err := Seal(password, plaintext)
	if err != nil {
		return fmt.Errorf("seal entry: %w", err)
	}

	// Temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(s.dir, keyID+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	logging.Ctx(ctx).Debug().Str("key_id", keyID).Msg("Stored credential entry")
	return nil
}

// Get reads and decrypts the entry for keyID. Any failure, including a
// missing file, returns ErrDecryptingFailed so callers cannot probe for
// key existence.
func (s *Store) Get(ctx context.Context, keyID, password string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(keyID)
	if err != nil {
		return nil, ErrDecryptingFailed
	}

	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrDecryptingFailed
	}
	plaintext, err := Open(password, sealed)
	if err != nil {
		return nil, ErrDecryptingFailed
	}

	var entry Entry
	if err := json.Unmarshal(plaintext, &entry); err != nil {
		return nil, ErrDecryptingFailed
	}
	return &entry, nil
}

// Delete removes the entry file. Missing files are not an error; the
// credential is equally gone either way.
func (s *Store) Delete(ctx context.Context, keyID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(keyID)
	if err != nil {
		return fmt.Errorf("invalid key id")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove entry: %w", err)
	}
	logging.Ctx(ctx).Info().Str("key_id", keyID).Msg("Deleted credential entry")
	return nil
}
