// Package config provides the adapter's environment-driven configuration
// helpers, in the same spirit as the rest of the stack: no config file
// parser, just env vars with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// DefaultRedisAddr is the fallback result-cache/rate-limit backend used
// when REDIS_ADDR is not set.
const DefaultRedisAddr = "localhost:6379"

// Env returns the value of the environment variable key, or def if unset.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt parses the environment variable key as an int, or returns def if
// unset or unparsable.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// EnvDuration parses the environment variable key with time.ParseDuration,
// or returns def if unset or unparsable.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// RedisAddr returns the result-cache/rate-limit Redis address from
// REDIS_ADDR, falling back to DefaultRedisAddr when unset.
func RedisAddr() string {
	return Env("REDIS_ADDR", DefaultRedisAddr)
}

// MDNSPort returns the port the LAN-discovery responder advertises.
func MDNSPort() int {
	return EnvInt("LOCALTAGFS_MDNS_PORT", 0)
}

// AdminHTTPAddr returns the listen address for the debug/admin HTTP
// surface.
func AdminHTTPAddr() string {
	return Env("LOCALTAGFS_ADMIN_ADDR", ":8910")
}

// AdminJWTSecret returns the HMAC signing secret for admin session tokens.
// In production this must be set explicitly; the default exists only so
// the binary starts in a development environment.
func AdminJWTSecret() string {
	return Env("LOCALTAGFS_ADMIN_JWT_SECRET", "dev-secret-change-me")
}

// AdminPasswordHash returns the bcrypt hash of the admin surface's
// password, produced once via adminauth.HashPassword at deployment time.
// Empty means the admin surface is unreachable until one is configured.
func AdminPasswordHash() string {
	return Env("LOCALTAGFS_ADMIN_PASSWORD_HASH", "")
}

// TOTPSecret returns the base32 TOTP secret backing the admin surface's
// destroy_object step-up confirmation. Empty disables step-up entirely.
func TOTPSecret() string {
	return Env("LOCALTAGFS_ADMIN_TOTP_SECRET", "")
}

// TOTPIssuer returns the issuer name embedded in the TOTP enrollment QR
// code.
func TOTPIssuer() string {
	return Env("LOCALTAGFS_ADMIN_TOTP_ISSUER", "localtagfs")
}

// ResultCacheTTL returns the TTL applied to cached aggregate query
// results.
func ResultCacheTTL() time.Duration {
	return EnvDuration("LOCALTAGFS_RESULTCACHE_TTL", 30*time.Second)
}

// IndexerEndpoint returns the address of the triple-store indexer session
// endpoint this adapter connects to.
func IndexerEndpoint() string {
	return Env("LOCALTAGFS_INDEXER_ENDPOINT", "localhost:7890")
}

// MusicLibraryRoot and VideoLibraryRoot return the filesystem roots the
// change-notification watcher monitors.
func MusicLibraryRoot() string {
	return Env("LOCALTAGFS_MUSIC_ROOT", os.Getenv("HOME")+"/MyDocs/Music")
}

func VideoLibraryRoot() string {
	return Env("LOCALTAGFS_VIDEO_ROOT", os.Getenv("HOME")+"/MyDocs/Videos")
}
