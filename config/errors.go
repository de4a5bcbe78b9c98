package config

import "fmt"

// ConfigError is returned for any unreadable or malformed rule source.
// Startup must be aborted when one is encountered.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
