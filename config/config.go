package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"mocksync/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	// Relay server
	Port         string
	JWTSecret    string
	RedisAddress string
	LogLevel     string

	// Workspace session
	BackendURL       string
	RelayURL         string
	TokenFile        string
	DatabaseURL      string
	DisplayName      string
	AutosaveInterval time.Duration
	ContentThrottle  time.Duration
	CursorThrottle   time.Duration

	// EnvFile reports whether a .env file was read. Warnings lists values
	// that were ignored. Load runs before the logger exists, so Report logs
	// both once it does.
	EnvFile  bool
	Warnings []string
}

// Load reads a .env file when present and builds the configuration from the
// process environment.
func Load() Config {
	var warnings []string
	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		value, err := parseDuration(key, defaultValue)
		if err != nil {
			warnings = append(warnings, err.Error())
		}
		return value
	}

	cfg := Config{
		EnvFile:          godotenv.Load() == nil,
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		RedisAddress:     getEnv("REDIS_ADDRESS", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BackendURL:       getEnv("BACKEND_URL", "http://localhost:3000/api"),
		RelayURL:         getEnv("RELAY_URL", "ws://localhost:8080/ws"),
		TokenFile:        getEnv("TOKEN_FILE", ".mocksync-token"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DisplayName:      getEnv("DISPLAY_NAME", ""),
		AutosaveInterval: getDuration("AUTOSAVE_INTERVAL", 10*time.Second),
		ContentThrottle:  getDuration("CONTENT_THROTTLE", 150*time.Millisecond),
		CursorThrottle:   getDuration("CURSOR_THROTTLE", 60*time.Millisecond),
	}
	cfg.Warnings = warnings
	return cfg
}

// Report logs what Load noticed. Call it after logger.Init.
func (c Config) Report() {
	if !c.EnvFile {
		logger.Sugar.Debugf("No .env file found, using environment variables from OS")
	}
	for _, w := range c.Warnings {
		logger.Sugar.Warn(w)
	}
}

func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return defaultValue, fmt.Errorf("invalid %s=%q, using default %s", key, raw, defaultValue)
	}
	return value, nil
}
