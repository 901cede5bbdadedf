package config

import _ "embed"

// schemaSource is the CUE schema every .cue configuration is unified with.
//
//go:embed schema.cue
var schemaSource string
