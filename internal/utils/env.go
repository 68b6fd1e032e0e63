package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// SafeEnvInt parses key as an int; unset or malformed values yield fallback.
func SafeEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(SafeEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func SafeEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(SafeEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func SafeEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(SafeEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

// SafeEnvDuration accepts Go durations ("30s") or a bare number of seconds.
func SafeEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := SafeEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
