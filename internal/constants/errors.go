package constants

import "errors"

// Configuration errors.
var (
	ErrNoAPIEndpointConfigured = errors.New("no API endpoint configured, use 'entityctl config set api <url>'")
	ErrNoLanguageConfigured    = errors.New("no language id configured, use 'entityctl config set language_id <id>'")
	ErrUnknownConfigKey        = errors.New("unknown configuration key")
)

// Input errors.
var (
	ErrEntityNameRequired = errors.New("entity name is required, set it per item or with --entity")
	ErrInputFileRequired  = errors.New("--file is required")
	ErrInvalidSortFormat  = errors.New("invalid sort format, expected field[:ASC|DESC]")
	ErrInvalidFilter      = errors.New("invalid filter format, expected field=value")
	ErrInvalidAssignment  = errors.New("invalid assignment, expected field=value")
	ErrSyncFailures       = errors.New("one or more sync operations failed")
)
