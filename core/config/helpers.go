package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Helpers. Keys are looked up in viper, which has AutomaticEnv enabled and
// receives the cobra flags, so env vars and flags resolve through the same path.
func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	return viper.GetInt(key)
}

func getEnvFloat(key string, fallback float64) float64 {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	return viper.GetFloat64(key)
}

func getEnvBool(key string, fallback bool) bool {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	v := strings.ToLower(viper.GetString(key))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if !viper.IsSet(key) || viper.GetString(key) == "" {
		return fallback
	}
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
