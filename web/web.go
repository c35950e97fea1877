// Package web holds the browser assets of the chronomap page.
package web

import "embed"

//go:embed static
var Static embed.FS
