package compileservice

import (
	"fmt"
	"time"
)

// Config holds configuration for the compile service.
type Config struct {
	// Subject is the NATS subject compile requests arrive on.
	Subject string `json:"subject"`

	// Queue is the queue group shared by service replicas.
	Queue string `json:"queue"`

	// Workers bounds how many compiles run at once.
	Workers int `json:"workers"`

	// RequestTimeout bounds one compile.
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Subject:        "semlogic.compile.request",
		Queue:          "semlogic-compilers",
		Workers:        4,
		RequestTimeout: 5 * time.Minute,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}
