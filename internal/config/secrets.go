// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"

	"github.com/tomtom215/oauthbridge/internal/storage"
)

// LoadSecrets resolves the SECRETS setting into a name→value table used for
// %NAME% placeholder expansion in the service catalog.
//
// The location is a file path or "base64:<…>" inline content. When a
// passphrase is given the raw bytes are decrypted first (same sealed-blob
// container as the credential store). Content is parsed as a YAML map or,
// failing that, as KEY=VALUE lines with '#' comments.
func LoadSecrets(location, passphrase string) (map[string]string, error) {
	if location == "" {
		return map[string]string{}, nil
	}

	var data []byte
	var err error
	if enc, ok := strings.CutPrefix(location, "base64:"); ok {
		data, err = base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode inline secrets: %w", err)
		}
	} else {
		data, err = os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	}

	if passphrase != "" {
		data, err = storage.Open(passphrase, data)
		if err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	return parseSecrets(data)
}

// parseSecrets accepts a YAML map or dotenv-style KEY=VALUE lines.
func parseSecrets(data []byte) (map[string]string, error) {
	if parsed, err := yaml.Parser().Unmarshal(data); err == nil && len(parsed) > 0 {
		out := make(map[string]string, len(parsed))
		ok := true
		for name, value := range parsed {
			s, isStr := value.(string)
			if !isStr {
				ok = false
				break
			}
			out[name] = s
		}
		if ok {
			return out, nil
		}
	}

	out := make(map[string]string)
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("secrets line %d: expected KEY=VALUE", lineNo+1)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out, nil
}
