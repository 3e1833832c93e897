// Package config provides configuration loading and validation for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the environment-derived settings for the service.
type Config struct {
	DatabaseURL string
	APIKey      string // Gemini API key
	SearchKey   string // Google Custom Search API key, optional
	SearchCX    string // Custom Search engine ID, optional
	Port        int
}

// Load reads configuration from environment variables.
// DATABASE_URL and GEMINI_API_KEY are required; PORT defaults to 8080.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		APIKey:      os.Getenv("GEMINI_API_KEY"),
		SearchKey:   os.Getenv("GOOGLE_SEARCH_API_KEY"),
		SearchCX:    os.Getenv("GOOGLE_SEARCH_CX"),
		Port:        8080,
	}

	if portStr := os.Getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %v", err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}
	if c.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required but not set")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if (c.SearchKey == "") != (c.SearchCX == "") {
		return fmt.Errorf("GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_CX must be set together")
	}
	return nil
}

// SearchEnabled reports whether web search is configured.
func (c *Config) SearchEnabled() bool {
	return c.SearchKey != "" && c.SearchCX != ""
}
