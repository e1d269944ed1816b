package hooks

import "context"

// Hook represents a handler invoked when a playout event occurs.
type Hook interface {
	// Execute runs the hook with the given event.
	Execute(ctx context.Context, event Event) error

	// Type returns the hook type identifier.
	Type() string

	// ID returns a unique identifier for this hook instance.
	ID() string
}

// Config configures the HookManager.
type Config struct {
	// Timeout bounds a single hook execution (default: 30s).
	Timeout string `yaml:"timeout" json:"timeout"`

	// Concurrency caps concurrent hook executions (default: 10).
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// StdioFormat enables structured stdio output: "json", "env", or "".
	StdioFormat string `yaml:"stdio_format" json:"stdio_format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
