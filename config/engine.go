package config

import (
	"os"
	"strconv"
	"time"
)

// EngineSettings are the session engine tunables, read from the environment
// with sensible defaults.
type EngineSettings struct {
	PomodoroSeconds  int64
	SnapshotTTL      time.Duration
	AutosaveInterval time.Duration
	PortalOpenDelay  time.Duration
}

func LoadEngineSettings() EngineSettings {
	return EngineSettings{
		PomodoroSeconds:  envInt64("SESSION_POMODORO_SECONDS", 25*60),
		SnapshotTTL:      envDuration("SESSION_SNAPSHOT_TTL", 6*time.Hour),
		AutosaveInterval: envDuration("SESSION_AUTOSAVE_INTERVAL", 15*time.Second),
		PortalOpenDelay:  envDuration("PORTAL_OPEN_DELAY", 150*time.Millisecond),
	}
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
