package parser

import "errors"

var (
	// ErrCancelled is returned when a parse is aborted by its context,
	// timeout or cancel flag. No partial tree is returned.
	ErrCancelled = errors.New("parse cancelled")
	// ErrNoLanguage is returned by Parse before SetLanguage succeeded.
	ErrNoLanguage = errors.New("no language set")
)
