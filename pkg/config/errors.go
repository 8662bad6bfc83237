package config

import "errors"

var (
	// ErrInvalidJSON indicates config.json failed to parse.
	ErrInvalidJSON = errors.New("invalid config JSON")

	// ErrInvalidYAML indicates a YAML overlay file failed to parse.
	ErrInvalidYAML = errors.New("invalid config YAML")

	// ErrInvalidValue indicates a field has a value with no sane default
	// to clamp to.
	ErrInvalidValue = errors.New("invalid config value")
)
