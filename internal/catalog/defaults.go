// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

package catalog

// builtinServices returns the default provider descriptors. Client ids and
// secrets are secret placeholders resolved at load time; the callback URI
// placeholder expands to https://<hostname>/logged-in.
//
// The descriptors encode per-provider quirks: Google wants offline access
// flags appended raw, Box refuses redirect_uri on refresh, Jottacloud uses
// the resource-owner password grant, pCloud routes token requests to the
// region host echoed in the callback, Dropbox forwards extra callback
// parameters that the client needs.
func builtinServices() []ServiceConfig {
	return []ServiceConfig{
		{
			ID:           "gd",
			Name:         "Google Drive",
			ClientID:     "%GD_CLIENT_ID%",
			ClientSecret: "%GD_CLIENT_SECRET%",
			AuthURL:      "https://www.googleapis.com/oauth2/v3/token",
			LoginURL:     "https://accounts.google.com/o/oauth2/auth",
			Scope:        "https://www.googleapis.com/auth/drive",
			RedirectURI:  "%OAUTH_CALLBACK_URI%",
			ExtraURL:     "&access_type=offline&approval_prompt=force",
			ServiceLink:  "https://drive.google.com",
			DeAuthLink:   "https://security.google.com/settings/security/permissions",
			BrandImage:   "/brands/gd.png",
		},
		{
			ID:           "onedrive",
			Name:         "Microsoft OneDrive",
			ClientID:     "%ONEDRIVE_CLIENT_ID%",
			ClientSecret: "%ONEDRIVE_CLIENT_SECRET%",
			AuthURL:      "https://login.microsoftonline.com/common/oauth2/v2.0/token",
			LoginURL:     "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			Scope:        "offline_access Files.ReadWrite",
			RedirectURI:  "%OAUTH_CALLBACK_URI%",
			ServiceLink:  "https://onedrive.live.com",
			DeAuthLink:   "https://account.live.com/consent/Manage",
			BrandImage:   "/brands/onedrive.png",
		},
		{
			ID:                             "box",
			Name:                           "Box.com",
			ClientID:                       "%BOX_CLIENT_ID%",
			ClientSecret:                   "%BOX_CLIENT_SECRET%",
			AuthURL:                        "https://api.box.com/oauth2/token",
			LoginURL:                       "https://app.box.com/api/oauth2/authorize",
			Scope:                          "root_readwrite",
			RedirectURI:                    "%OAUTH_CALLBACK_URI%",
			ServiceLink:                    "https://www.box.com",
			DeAuthLink:                     "https://app.box.com/account",
			BrandImage:                     "/brands/box.png",
			NoRedirectURIForRefreshRequest: true,
		},
		{
			ID:           "dropbox",
			Name:         "Dropbox",
			ClientID:     "%DROPBOX_CLIENT_ID%",
			ClientSecret: "%DROPBOX_CLIENT_SECRET%",
			AuthURL:      "https://api.dropboxapi.com/oauth2/token",
			LoginURL:     "https://www.dropbox.com/oauth2/authorize",
			RedirectURI:  "%OAUTH_CALLBACK_URI%",
			ExtraURL:     "&token_access_type=offline",
			ServiceLink:  "https://www.dropbox.com",
			DeAuthLink:   "https://www.dropbox.com/account/connected_apps",
			BrandImage:   "/brands/dropbox.png",
		},
		{
			ID:          "jotta",
			Name:        "Jottacloud",
			ClientID:    "jottacli",
			AuthURL:     "https://id.jottacloud.com/auth/realms/jottacloud/protocol/openid-connect/token",
			Scope:       "openid offline_access",
			ServiceLink: "https://www.jottacloud.com",
			BrandImage:  "/brands/jotta.png",
			Notes:       "Uses a personal login token generated in the Jottacloud web interface.",
			CliToken:    true,
			PreferV2:    true,
		},
		{
			ID:                      "pcloud",
			Name:                    "pCloud",
			ClientID:                "%PCLOUD_CLIENT_ID%",
			ClientSecret:            "%PCLOUD_CLIENT_SECRET%",
			AuthURL:                 "https://api.pcloud.com/oauth2_token",
			LoginURL:                "https://my.pcloud.com/oauth2/authorize",
			RedirectURI:             "%OAUTH_CALLBACK_URI%",
			ServiceLink:             "https://www.pcloud.com",
			BrandImage:              "/brands/pcloud.png",
			UseHostnameFromCallback: true,
			AccessTokenOnly:         true,
			AdditionalElements:      []string{"hostname", "locationid"},
		},
		{
			ID:           "hubic",
			Name:         "HubiC",
			ClientID:     "%HUBIC_CLIENT_ID%",
			ClientSecret: "%HUBIC_CLIENT_SECRET%",
			AuthURL:      "https://api.hubic.com/oauth/token",
			LoginURL:     "https://api.hubic.com/oauth/auth",
			Scope:        "credentials.r,account.r",
			RedirectURI:  "%OAUTH_CALLBACK_URI%",
			ServiceLink:  "https://hubic.com",
			BrandImage:   "/brands/hubic.png",
			Hidden:       true,
		},
	}
}
