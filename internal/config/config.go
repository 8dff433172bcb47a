package config

import (
	"os"
	"strconv"
	"strings"
)

// MemoryDB as PORTUNUS_DB_PATH keeps the audit log in memory only.
const MemoryDB = "memory"

type Config struct {
	// Listeners; empty disables the surface.
	HTTPAddr string
	GRPCAddr string

	// DB
	DBPath string // e.g. "./data/portunus-door.db", or MemoryDB

	// Audit retention
	EventRetentionDays int // 0 = keep forever
	PruneIntervalHours int // how often the pruner runs (default 6)

	// HardwareProfile is an optional YAML file overriding pin and timing
	// defaults.
	HardwareProfile string
}

func FromEnv() Config {
	return Config{
		HTTPAddr: strings.TrimSpace(os.Getenv("PORTUNUS_HTTP_ADDR")),
		GRPCAddr: strings.TrimSpace(os.Getenv("PORTUNUS_GRPC_ADDR")),

		DBPath: getenvDefault("PORTUNUS_DB_PATH", "./data/portunus-door.db"),

		EventRetentionDays: getenvInt("PORTUNUS_EVENT_RETENTION_DAYS", 90),
		PruneIntervalHours: getenvInt("PORTUNUS_PRUNE_INTERVAL_HOURS", 6),

		HardwareProfile: strings.TrimSpace(os.Getenv("PORTUNUS_HARDWARE_PROFILE")),
	}
}

// InMemory reports whether the audit log should skip SQLite.
func (c Config) InMemory() bool {
	return strings.EqualFold(c.DBPath, MemoryDB)
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
