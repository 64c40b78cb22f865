package adminserver

import "time"

// Config holds the admin HTTP server's settings.
type Config struct {
	Host           string        // Listen host.
	Port           int           // Listen port.
	ReadTimeout    time.Duration // HTTP read timeout.
	WriteTimeout   time.Duration // HTTP write timeout.
	IdleTimeout    time.Duration // HTTP idle timeout.
	MaxRequestSize int64         // Maximum request body size in bytes.
	EnableCORS     bool          // Enable permissive CORS for browser clients.
	EnableGraphQL  bool          // Mount /graphql and /graphiql.
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           "localhost",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024,
		EnableCORS:     true,
		EnableGraphQL:  true,
	}
}
