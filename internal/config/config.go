// Package config loads the ctcache configuration from CTCACHE_* environment
// variables. The wrapper has no config file of its own: it runs once per
// analyzer invocation and everything it needs travels in the environment of
// the parent build.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CTCACHE_"

// Config is the immutable snapshot of the process environment taken at
// startup. Presence-style toggles (Dump, Debug, IgnoreOutput, the anonymous
// cloud modes) are true when the variable is set at all; SaveOutput follows
// the stricter "set to 1" convention.
type Config struct {
	// Local cache.
	Dir   string   // cache root, CTCACHE_DIR
	Strip []string // substrings elided from hashed tokens, CTCACHE_STRIP

	// Fingerprinting.
	ExcludeHashRegex string // CTCACHE_EXCLUDE_HASH_REGEX
	Dump             bool   // CTCACHE_DUMP
	DumpDir          string // CTCACHE_DUMP_DIR

	// Behavior toggles.
	SaveOutput   bool // CTCACHE_SAVE_OUTPUT=1: store and replay analyzer stdout
	IgnoreOutput bool // CTCACHE_IGNORE_OUTPUT: non-empty stdout does not block caching
	Debug        bool // CTCACHE_DEBUG: verbose logging, panics propagate

	// HTTP server tier.
	Host  string // CTCACHE_HOST; empty disables the tier
	Proto string // CTCACHE_PROTO, default "http"
	Port  int    // CTCACHE_PORT, default 5000

	// S3 tier.
	S3Bucket    string
	S3Folder    string
	S3Anonymous bool // CTCACHE_S3_NO_CREDENTIALS

	// GCS tier.
	GCSBucket    string
	GCSFolder    string
	GCSAnonymous bool // CTCACHE_GCS_NO_CREDENTIALS

	// Redis tier.
	RedisHost      string // empty disables the tier
	RedisPort      int    // default 6379
	RedisUsername  string
	RedisPassword  string
	RedisNamespace string // key prefix, default "ctcache/"
}

// Load reads the process environment into a Config.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{
		Dir:              stringOr(k, "dir", DefaultDir()),
		Strip:            splitList(k.String("strip")),
		ExcludeHashRegex: k.String("exclude_hash_regex"),
		Dump:             k.Exists("dump"),
		DumpDir:          stringOr(k, "dump_dir", os.TempDir()),
		SaveOutput:       k.String("save_output") == "1",
		IgnoreOutput:     k.Exists("ignore_output"),
		Debug:            k.Exists("debug"),
		Host:             k.String("host"),
		Proto:            stringOr(k, "proto", "http"),
		Port:             intOr(k, "port", 5000),
		S3Bucket:         k.String("s3_bucket"),
		S3Folder:         k.String("s3_folder"),
		S3Anonymous:      k.Exists("s3_no_credentials"),
		GCSBucket:        k.String("gcs_bucket"),
		GCSFolder:        k.String("gcs_folder"),
		GCSAnonymous:     k.Exists("gcs_no_credentials"),
		RedisHost:        k.String("redis_host"),
		RedisPort:        intOr(k, "redis_port", 6379),
		RedisUsername:    k.String("redis_username"),
		RedisPassword:    k.String("redis_password"),
		RedisNamespace:   stringOr(k, "redis_namespace", "ctcache/"),
	}
	return cfg, nil
}

// DefaultDir returns the cache root used when CTCACHE_DIR is not set:
// <tmp>/ctcache-<username>, with "unknown" when the user cannot be resolved.
func DefaultDir() string {
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return filepath.Join(os.TempDir(), "ctcache-"+name)
}

func stringOr(k *koanf.Koanf, key, fallback string) string {
	if v := k.String(key); v != "" {
		return v
	}
	return fallback
}

func intOr(k *koanf.Koanf, key string, fallback int) int {
	if v := k.Int(key); v != 0 {
		return v
	}
	return fallback
}

// splitList splits a colon-separated value, dropping empty elements.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ":") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
