// Package configs embeds the configuration templates written by
// `bulletinsearch config init`.
//
// Precedence (see internal/config Load):
//  1. Built-in defaults
//  2. User config (~/.config/bulletinsearch/config.yaml)
//  3. Project config (.bulletinsearch.yaml)
//  4. Environment variables (BULLETINSEARCH_*)
package configs

import _ "embed"

// UserConfigHeader is prepended to the generated user config, which holds
// every default value.
//
//go:embed user-config-header.yaml
var UserConfigHeader string

// ProjectConfigTemplate is written to .bulletinsearch.yaml by
// `config init --project`. Every setting is commented out so the file
// changes nothing until edited.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
