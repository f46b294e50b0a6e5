package entity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteContext is returned before any I/O when an APIContext lacks
// a value every request must carry.
var ErrIncompleteContext = errors.New("incomplete API context")

// APIContext scopes a single repository call. It is a value type: callers
// that need a different scope derive a new value instead of mutating a
// shared one.
type APIContext struct {
	// Endpoint is the API base address, e.g. "https://shop.example.com/api".
	Endpoint string `json:"endpoint"        yaml:"endpoint"`
	// LanguageID selects translated field values.
	LanguageID string `json:"language_id"     yaml:"language_id"`
	// CurrencyID selects currency dependent values.
	CurrencyID string `json:"currency_id"     yaml:"currency_id"`
	// APIVersion is sent with every request.
	APIVersion string `json:"api_version"     yaml:"api_version"`
	// LiveVersionID is the version id of the live data set.
	LiveVersionID string `json:"live_version_id" yaml:"live_version_id"`
}

// WithLanguage returns a copy scoped to another language.
func (c APIContext) WithLanguage(languageID string) APIContext {
	c.LanguageID = languageID

	return c
}

// WithCurrency returns a copy scoped to another currency.
func (c APIContext) WithCurrency(currencyID string) APIContext {
	c.CurrencyID = currencyID

	return c
}

// WithVersion returns a copy scoped to another data version.
func (c APIContext) WithVersion(versionID string) APIContext {
	c.LiveVersionID = versionID

	return c
}

// WithEndpoint returns a copy pointing at another API base address.
func (c APIContext) WithEndpoint(endpoint string) APIContext {
	c.Endpoint = strings.TrimSuffix(endpoint, "/")

	return c
}

// Validate reports which mandatory values are missing.
func (c APIContext) Validate() error {
	var missing []string

	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}

	if c.LanguageID == "" {
		missing = append(missing, "language id")
	}

	if c.APIVersion == "" {
		missing = append(missing, "API version")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteContext, strings.Join(missing, ", "))
	}

	return nil
}
