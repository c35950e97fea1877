// Package service holds the long-lived state of a chronomaps server: the
// chronomap registry, one content repository per chronomap and the live
// browser views.
package service

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for unknown chronomaps and views.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a slug is already registered.
	ErrExists = errors.New("already exists")
	// ErrInvalid is returned for chronomaps that cannot be stored.
	ErrInvalid = errors.New("invalid")
)

// Chronomap is a registered chronomap and the Baserow database behind it.
// Huma reads the tags for OpenAPI and validation; yaml tags drive import
// and export.
type Chronomap struct {
	Slug          string `json:"slug,omitempty" yaml:"slug" pattern:"^[a-z0-9_-]*$" maxLength:"100" doc:"URL slug" example:"harbour_history"`
	Title         string `json:"title" yaml:"title" required:"true" minLength:"1" maxLength:"200" doc:"Display title" example:"Harbour History"`
	DatabaseID    int    `json:"databaseId" yaml:"database_id" required:"true" minimum:"1" doc:"Baserow database id" example:"1234"`
	DatabaseToken string `json:"databaseToken,omitempty" yaml:"database_token" doc:"Baserow database token"`
	Endpoint      string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" doc:"Baserow API endpoint; empty uses the server default"`
	EditorName    string `json:"editorName,omitempty" yaml:"editor_name,omitempty" doc:"Editor name"`
	EditorEmail   string `json:"editorEmail,omitempty" yaml:"editor_email,omitempty" format:"email" doc:"Editor email"`
	Pitch         string `json:"pitch,omitempty" yaml:"pitch,omitempty" doc:"Short description"`

	// MinDate and MaxDate pin the timeline domain. Zero follows the items.
	MinDate time.Time `json:"minDate,omitzero" yaml:"min_date,omitempty" doc:"Pinned timeline start"`
	MaxDate time.Time `json:"maxDate,omitzero" yaml:"max_date,omitempty" doc:"Pinned timeline end"`
}

// Public returns c without its database token.
func (c Chronomap) Public() Chronomap {
	c.DatabaseToken = ""
	return c
}
