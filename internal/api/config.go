package api

import (
	"github.com/FocuswithJustin/enriched/core/store"
	"github.com/FocuswithJustin/enriched/core/theme"
)

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string     // CORS and WebSocket origins (empty = allow all)
	MaxBodyBytes   int64        // Request body and WebSocket frame limit
	CacheSize      int          // Conversion cache entries (0 = no cache)
	MaxMessageRate int          // WebSocket frames per second per client (0 = unlimited)
	Theme          *theme.Theme // Theme for built documents (nil = default)
	Store          *store.Store // Enables the document endpoints when set
	Version        string       // Reported by the health endpoint
}

// DefaultConfig returns the configuration used by the serve command.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		MaxBodyBytes:   1 << 20,
		CacheSize:      256,
		MaxMessageRate: 20,
		Version:        "dev",
	}
}
