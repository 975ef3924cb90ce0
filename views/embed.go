// Package views holds the HTML templates compiled into the binary
package views

import "embed"

//go:embed layouts pages partials
var FS embed.FS
