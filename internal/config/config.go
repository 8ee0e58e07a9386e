package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv      = "NYCRIMES_CONFIG"
	logLevelEnv        = "NYCRIMES_LOG_LEVEL"
	httpAddrEnv        = "NYCRIMES_HTTP_ADDR"
	historyDriverEnv   = "NYCRIMES_HISTORY_DRIVER"
	historyDSNEnv      = "NYCRIMES_HISTORY_DSN"
	preferReaderEnv    = "NYCRIMES_PREFER_READER"
	readerCapableEnv   = "NYCRIMES_READER_CAPABLE"
	chainCandidatesEnv = "NYCRIMES_CHAIN_CANDIDATES"
	defaultTimeout     = 8 * time.Second
	desktopUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 15_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.5 Safari/605.1.15"
	mobileUserAgent    = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.5 Mobile/15E148 Safari/605.1.15"
	DriverSQLite       = "sqlite"
	DriverPostgres     = "postgres"
	defaultServerAddr  = ":8080"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Resolver ResolverConfig `yaml:"resolver"`
	Hosts    HostsConfig    `yaml:"hosts"`
	Probe    ProbeConfig    `yaml:"probe"`
	Browser  BrowserConfig  `yaml:"browser"`
	Cache    CacheConfig    `yaml:"cache"`
	History  HistoryConfig  `yaml:"history"`
	Server   ServerConfig   `yaml:"server"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ResolverConfig tunes the resolution state machine.
type ResolverConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// PreferReader starts NYT articles on the reader proxy instead of the aggregator.
	PreferReader bool `yaml:"preferReader"`
	// ReaderCapable means the presentation surface can display reader-proxy output,
	// so the timeout fallback may wrap the original URL with the reader prefix.
	ReaderCapable   bool `yaml:"readerCapable"`
	ChainCandidates bool `yaml:"chainCandidates"`
}

// HostsConfig lists every domain literal, path prefix, and URL template.
type HostsConfig struct {
	ContentDomain    string   `yaml:"contentDomain"`
	ShortlinkDomain  string   `yaml:"shortlinkDomain"`
	ReaderHost       string   `yaml:"readerHost"`
	ReaderPrefix     string   `yaml:"readerPrefix"`
	AggregatorHost   string   `yaml:"aggregatorHost"`
	AggregatorPrefix string   `yaml:"aggregatorPrefix"`
	ArchiveDomains   []string `yaml:"archiveDomains"`
	ArchiveRunURL    string   `yaml:"archiveRunUrl"`
	// ArchiveCandidates are templates; {url} is replaced verbatim, {encoded} percent-encoded.
	ArchiveCandidates []string `yaml:"archiveCandidates"`
	ExcludedPrefixes  []string `yaml:"excludedPrefixes"`
}

// ProbeConfig holds block/CAPTCHA signal regexes.
type ProbeConfig struct {
	Patterns []string `yaml:"patterns"`
}

// BrowserConfig configures the headless HTTP surface.
type BrowserConfig struct {
	UserAgent      string        `yaml:"userAgent"`
	PreferMobile   bool          `yaml:"preferMobile"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	RatePerSecond  float64       `yaml:"ratePerSecond"`
	Burst          int           `yaml:"burst"`
	MaxBodyBytes   int64         `yaml:"maxBodyBytes"`
}

// CacheConfig controls the in-memory resolved-URL cache.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// HistoryConfig describes the optional resolution history database.
type HistoryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Retention drops rows older than this while serving; zero keeps everything.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"pruneInterval"`
}

// ServerConfig holds the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Enabled reports whether resolution history should be recorded.
func (h HistoryConfig) Enabled() bool {
	return strings.TrimSpace(h.DSN) != ""
}

// UserAgentString picks the configured user agent or a Safari default.
func (b BrowserConfig) UserAgentString() string {
	if b.UserAgent != "" {
		return b.UserAgent
	}
	if b.PreferMobile {
		return mobileUserAgent
	}
	return desktopUserAgent
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile is Load with an explicit path; an empty path means defaults plus env.
func LoadFile(path string) Config {
	cfg := Default()

	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			var switches fileSwitches
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else if err := yaml.Unmarshal(raw, &switches); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
				switches.apply(&cfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate rejects settings the resolver cannot run with.
func (c Config) Validate() error {
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver timeout must be positive: %s", c.Resolver.Timeout)
	}
	if strings.TrimSpace(c.Hosts.ContentDomain) == "" {
		return fmt.Errorf("hosts.contentDomain is required")
	}
	if len(c.Hosts.ArchiveDomains) == 0 {
		return fmt.Errorf("hosts.archiveDomains must not be empty")
	}
	switch c.History.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("history driver must be %s or %s: %s", DriverSQLite, DriverPostgres, c.History.Driver)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.Server.Addr = v
	}

	if v := os.Getenv(historyDriverEnv); v != "" {
		c.History.Driver = v
	}

	if v := os.Getenv(historyDSNEnv); v != "" {
		c.History.DSN = v
	}

	envBool(preferReaderEnv, &c.Resolver.PreferReader)
	envBool(readerCapableEnv, &c.Resolver.ReaderCapable)
	envBool(chainCandidatesEnv, &c.Resolver.ChainCandidates)
}

func envBool(name string, dst *bool) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid %s=%q, keeping %t", name, v, *dst)
		return
	}
	*dst = parsed
}

// fileSwitches captures booleans present in the file, so an explicit false
// can turn off a default that is on.
type fileSwitches struct {
	Resolver struct {
		PreferReader    *bool `yaml:"preferReader"`
		ReaderCapable   *bool `yaml:"readerCapable"`
		ChainCandidates *bool `yaml:"chainCandidates"`
	} `yaml:"resolver"`
	Browser struct {
		PreferMobile *bool `yaml:"preferMobile"`
	} `yaml:"browser"`
}

func (f fileSwitches) apply(c *Config) {
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.Resolver.PreferReader, f.Resolver.PreferReader)
	set(&c.Resolver.ReaderCapable, f.Resolver.ReaderCapable)
	set(&c.Resolver.ChainCandidates, f.Resolver.ChainCandidates)
	set(&c.Browser.PreferMobile, f.Browser.PreferMobile)
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Resolver.Timeout > 0 {
		base.Resolver.Timeout = override.Resolver.Timeout
	}

	h := override.Hosts
	if h.ContentDomain != "" {
		base.Hosts.ContentDomain = h.ContentDomain
	}
	if h.ShortlinkDomain != "" {
		base.Hosts.ShortlinkDomain = h.ShortlinkDomain
	}
	if h.ReaderHost != "" {
		base.Hosts.ReaderHost = h.ReaderHost
	}
	if h.ReaderPrefix != "" {
		base.Hosts.ReaderPrefix = h.ReaderPrefix
	}
	if h.AggregatorHost != "" {
		base.Hosts.AggregatorHost = h.AggregatorHost
	}
	if h.AggregatorPrefix != "" {
		base.Hosts.AggregatorPrefix = h.AggregatorPrefix
	}
	if len(h.ArchiveDomains) > 0 {
		base.Hosts.ArchiveDomains = h.ArchiveDomains
	}
	if h.ArchiveRunURL != "" {
		base.Hosts.ArchiveRunURL = h.ArchiveRunURL
	}
	if len(h.ArchiveCandidates) > 0 {
		base.Hosts.ArchiveCandidates = h.ArchiveCandidates
	}
	if len(h.ExcludedPrefixes) > 0 {
		base.Hosts.ExcludedPrefixes = h.ExcludedPrefixes
	}

	if len(override.Probe.Patterns) > 0 {
		base.Probe.Patterns = override.Probe.Patterns
	}

	b := override.Browser
	if b.UserAgent != "" {
		base.Browser.UserAgent = b.UserAgent
	}
	if b.RequestTimeout > 0 {
		base.Browser.RequestTimeout = b.RequestTimeout
	}
	if b.RatePerSecond > 0 {
		base.Browser.RatePerSecond = b.RatePerSecond
	}
	if b.Burst > 0 {
		base.Browser.Burst = b.Burst
	}
	if b.MaxBodyBytes > 0 {
		base.Browser.MaxBodyBytes = b.MaxBodyBytes
	}

	if override.Cache.TTL > 0 {
		base.Cache.TTL = override.Cache.TTL
	}
	if override.Cache.CleanupInterval > 0 {
		base.Cache.CleanupInterval = override.Cache.CleanupInterval
	}

	if override.History.Driver != "" {
		base.History.Driver = override.History.Driver
	}
	if override.History.DSN != "" {
		base.History.DSN = override.History.DSN
	}
	if override.History.Retention > 0 {
		base.History.Retention = override.History.Retention
	}
	if override.History.PruneInterval > 0 {
		base.History.PruneInterval = override.History.PruneInterval
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	return base
}

// Default returns the built-in settings: the third-party services and NYT path rules.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Resolver: ResolverConfig{
			Timeout:       defaultTimeout,
			ReaderCapable: true,
		},
		Hosts: HostsConfig{
			ContentDomain:    "nytimes.com",
			ShortlinkDomain:  "nyti.ms",
			ReaderHost:       "r.jina.ai",
			ReaderPrefix:     "https://r.jina.ai/",
			AggregatorHost:   "removepaywalls.com",
			AggregatorPrefix: "https://removepaywalls.com/",
			ArchiveDomains: []string{
				"archive.is", "archive.today", "archive.ph", "archive.li",
				"archive.md", "archive.vn", "archive.fo",
			},
			ArchiveRunURL: "https://archive.today/?run=1&url={encoded}",
			ArchiveCandidates: []string{
				"https://archive.is/latest/{url}",
				"https://archive.is/oldest/{url}",
				"https://archive.is/?run=1&url={encoded}",
			},
			ExcludedPrefixes: []string{
				"/section/", "/topic/", "/crosswords/", "/games/",
				"/account/", "/subscriptions/", "/auth/", "/wirecutter/",
				"/cooking/", "/athletic/",
			},
		},
		Probe: ProbeConfig{
			Patterns: []string{
				`403\s*forbidden`,
				`warning:\s*target url returned error\s*403`,
				`captcha`,
				`verify you are human`,
				`security check`,
			},
		},
		Browser: BrowserConfig{
			RequestTimeout: 20 * time.Second,
			RatePerSecond:  2,
			Burst:          4,
			MaxBodyBytes:   8 << 20,
		},
		Cache: CacheConfig{
			TTL:             30 * time.Minute,
			CleanupInterval: 10 * time.Minute,
		},
		History: HistoryConfig{
			Driver:        DriverSQLite,
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Server: ServerConfig{Addr: defaultServerAddr},
	}
}
