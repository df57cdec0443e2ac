package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides file settings from TASKALERT_* variables. Unparseable
// values are ignored.
func (c *Config) ApplyEnv() {
	if val := getEnv("TASKALERT_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := getEnv("TASKALERT_STORAGE"); val != "" {
		c.Storage = val
	}
	if val := getEnv("TASKALERT_NOTIFIER"); val != "" {
		c.Notifications.Backend = val
	}
	if val := getEnvDuration("TASKALERT_CHECK_INTERVAL"); val > 0 {
		c.Alerts.CheckInterval = Duration(val)
	}
	if val := getEnv("TASKALERT_ALARM"); val != "" {
		if on, err := strconv.ParseBool(val); err == nil {
			c.Alarm.Enabled = &on
		}
	}
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func getEnvDuration(key string) time.Duration {
	val := getEnv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}
