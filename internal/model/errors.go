package model

import (
	"errors"
	"fmt"
)

var (
	ErrSourceTimeout     = errors.New("source timeout")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrAllSourcesFailed  = errors.New("all sources failed")
	ErrConfiguration     = errors.New("configuration error")
)

// ConfigError describes one invalid construction parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}
