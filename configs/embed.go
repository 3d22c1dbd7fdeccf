// Package configs provides the embedded configuration template shipped
// with simdex. Embedding keeps the template available in every
// distribution, source builds and binary releases alike.
//
// The template is consumed by `simdex init`, which writes it as
// .simdex.yaml in the working directory. The configuration hierarchy is
// documented in internal/config: defaults, then the user config at
// ~/.config/simdex/config.yaml, then .simdex.yaml, then SIMDEX_*
// environment variables.
package configs

import _ "embed"

// ProjectConfigTemplate is the template for the per-directory
// configuration written by `simdex init`.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
