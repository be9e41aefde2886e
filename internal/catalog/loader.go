// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package catalog

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/oauthbridge/internal/logging"
)

// LoadOptions configure catalog assembly.
type LoadOptions struct {
	// Hostname is the public hostname used for callback URI templating.
	Hostname string

	// ConfigFile optionally overrides or extends the built-in catalog.
	// Accepts a file path or "base64:<…>" inline YAML.
	ConfigFile string

	// Services optionally restricts the active set to the listed ids.
	Services []string

	// Secrets supplies %NAME% placeholder values.
	Secrets map[string]string
}

// overrideFile is the YAML shape of CONFIGFILE.
type overrideFile struct {
	Services []ServiceRecord `koanf:"services"`
}

// rawProvider feeds already-loaded bytes into koanf. Implements the
// koanf.Provider interface for inline base64 config content.
type rawProvider struct{ data []byte }

func (p rawProvider) ReadBytes() ([]byte, error) { return p.data, nil }

func (p rawProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("raw provider supports bytes only")
}

// Load assembles the catalog: built-in defaults, CONFIGFILE merge, SERVICES
// filter, placeholder expansion, validation. Services whose client
// credentials still contain unresolved placeholders after expansion are
// dropped with a warning rather than failing startup, so operators can run
// with a subset of providers configured.
func Load(opts LoadOptions) (*Catalog, error) {
	byID := make(map[string]ServiceConfig)
	order := make([]string, 0, 16)
	for _, svc := range builtinServices() {
		byID[svc.ID] = svc
		order = append(order, svc.ID)
	}

	if opts.ConfigFile != "" {
		records, err := loadOverrides(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("load catalog override: %w", err)
		}
		for _, rec := range records {
			if rec.ID == "" {
				return nil, fmt.Errorf("catalog override record missing id")
			}
			if base, ok := byID[rec.ID]; ok {
				byID[rec.ID] = Merge(base, rec)
			} else {
				byID[rec.ID] = Merge(ServiceConfig{ID: rec.ID}, rec)
				order = append(order, rec.ID)
			}
		}
	}

	if len(opts.Services) > 0 {
		keep := make(map[string]bool, len(opts.Services))
		for _, id := range opts.Services {
			keep[strings.TrimSpace(id)] = true
		}
		filtered := order[:0]
		for _, id := range order {
			if keep[id] {
				filtered = append(filtered, id)
			}
		}
		order = filtered
	}

	vars := expansionVars(opts.Hostname, opts.Secrets)
	configs := make([]ServiceConfig, 0, len(order))
	for _, id := range order {
		svc := expand(byID[id], vars)
		if unresolved(svc.ClientID) || unresolved(svc.ClientSecret) {
			logging.Warn().Str("service", id).Msg("Skipping service with unresolved credential placeholders")
			continue
		}
		configs = append(configs, svc)
	}

	cat, err := NewCatalog(configs)
	if err != nil {
		return nil, err
	}
	logging.Info().Int("services", cat.Len()).Msg("Service catalog loaded")
	return cat, nil
}

// loadOverrides reads CONFIGFILE as YAML, from disk or inline base64.
func loadOverrides(location string) ([]ServiceRecord, error) {
	k := koanf.New(".")

	if enc, ok := strings.CutPrefix(location, "base64:"); ok {
		data, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode inline config: %w", err)
		}
		if err := k.Load(rawProvider{data: data}, yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse inline config: %w", err)
		}
	} else {
		if err := k.Load(file.Provider(location), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", location, err)
		}
	}

	var out overrideFile
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("unmarshal catalog records: %w", err)
	}
	return out.Services, nil
}

// expansionVars builds the placeholder table: the computed callback URI,
// the hostname, and every secret by name.
func expansionVars(hostname string, secrets map[string]string) map[string]string {
	vars := make(map[string]string, len(secrets)+2)
	for name, value := range secrets {
		vars[name] = value
	}
	vars["HOSTNAME"] = hostname
	vars["OAUTH_CALLBACK_URI"] = "https://" + hostname + "/logged-in"
	return vars
}

// expand substitutes %NAME% placeholders and then ${ENV} references in all
// string fields. Placeholder substitution is literal; values are not
// re-encoded.
func expand(svc ServiceConfig, vars map[string]string) ServiceConfig {
	sub := func(s string) string {
		for name, value := range vars {
			s = strings.ReplaceAll(s, "%"+name+"%", value)
		}
		return os.Expand(s, func(env string) string {
			if v, ok := os.LookupEnv(env); ok {
				return v
			}
			// Leave unknown references intact for visibility.
			return "${" + env + "}"
		})
	}

	svc.Name = sub(svc.Name)
	svc.ClientID = sub(svc.ClientID)
	svc.ClientSecret = sub(svc.ClientSecret)
	svc.AuthURL = sub(svc.AuthURL)
	svc.LoginURL = sub(svc.LoginURL)
	svc.Scope = sub(svc.Scope)
	svc.RedirectURI = sub(svc.RedirectURI)
	svc.ExtraURL = sub(svc.ExtraURL)
	svc.ServiceLink = sub(svc.ServiceLink)
	svc.DeAuthLink = sub(svc.DeAuthLink)
	svc.BrandImage = sub(svc.BrandImage)
	svc.Notes = sub(svc.Notes)
	return svc
}

// unresolved reports whether s still contains a %NAME% placeholder.
func unresolved(s string) bool {
	start := strings.IndexByte(s, '%')
	if start < 0 {
		return false
	}
	return strings.IndexByte(s[start+1:], '%') >= 0
}
