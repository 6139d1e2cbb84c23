package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "credvault/pkg/platform/strings"
)

// Server captures vault process level configuration.
type Server struct {
	Addr              string
	EntryTTL          time.Duration
	SessionTTL        time.Duration
	MaxUnlockAttempts int
	RefreshWarning    time.Duration
	SweepInterval     time.Duration
	BootstrapSubjects []string
	ExportDir         string
}

// Defaults. Entry custody and the refresh warning window come from policy:
// one year of custody, warn within 30 days of expiry.
var (
	EntryTTL       = 365 * 24 * time.Hour
	SessionTTL     = 5 * time.Minute
	RefreshWarning = 30 * 24 * time.Hour
	SweepInterval  = time.Hour
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VAULT_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	entryTTL := durationEnv("VAULT_ENTRY_TTL", EntryTTL)
	sessionTTL := durationEnv("VAULT_SESSION_TTL", SessionTTL)
	refreshWarning := durationEnv("VAULT_REFRESH_WARNING", RefreshWarning)
	sweepInterval := durationEnv("VAULT_SWEEP_INTERVAL", SweepInterval)

	maxAttempts := 3
	if raw := os.Getenv("VAULT_MAX_UNLOCK_ATTEMPTS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxAttempts = n
		}
	}

	// Privileged bootstrap subjects always classify as the top tier. This is
	// deployment configuration, not hard-coded identity.
	var bootstrap []string
	if raw := os.Getenv("VAULT_BOOTSTRAP_SUBJECTS"); raw != "" {
		bootstrap = platformstrings.DedupeAndTrim(strings.Split(raw, ","))
	}

	exportDir := os.Getenv("VAULT_EXPORT_DIR")
	if exportDir == "" {
		exportDir = "exports"
	}

	return Server{
		Addr:              addr,
		EntryTTL:          entryTTL,
		SessionTTL:        sessionTTL,
		MaxUnlockAttempts: maxAttempts,
		RefreshWarning:    refreshWarning,
		SweepInterval:     sweepInterval,
		BootstrapSubjects: bootstrap,
		ExportDir:         exportDir,
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
