// Package apperr defines the error kinds surfaced by the indexing and query paths.
package apperr

import (
	"errors"
	"fmt"
)

// ParseError reports malformed caption or timestamp input.
type ParseError struct {
	Input string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s (input=%q): %v", e.Msg, e.Input, e.Err)
	}
	return fmt.Sprintf("parse: %s (input=%q)", e.Msg, e.Input)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ProviderError reports an embedding, rerank, vision or store response that is
// missing an expected field or could not be obtained.
type ProviderError struct {
	Provider string
	Field    string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("provider %s: field %q: %v", e.Provider, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("provider %s: response missing field %q", e.Provider, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("provider %s: failed", e.Provider)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotFoundError reports a missing resource such as a job or transcript.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError reports a required model, index or endpoint identifier that is absent or invalid.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// NewParseError creates a ParseError.
func NewParseError(input, msg string, err error) *ParseError {
	return &ParseError{Input: input, Msg: msg, Err: err}
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, field string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Field: field, Err: err}
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, msg string) *ConfigError {
	return &ConfigError{Field: field, Msg: msg}
}

// IsParse reports whether err wraps a ParseError.
func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// IsProvider reports whether err wraps a ProviderError.
func IsProvider(err error) bool {
	var e *ProviderError
	return errors.As(err, &e)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConfig reports whether err wraps a ConfigError.
func IsConfig(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
