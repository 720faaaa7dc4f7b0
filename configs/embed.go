// Package configs embeds the configuration template written by
// `pagemind config init`.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (config.NewConfig)
//  2. User config (~/.config/pagemind/config.yaml)
//  3. An explicit --config file
//  4. Environment variables (PAGEMIND_*)
package configs

import _ "embed"

// UserConfigTemplate is the commented example user configuration.
//
//go:embed config.example.yaml
var UserConfigTemplate string
