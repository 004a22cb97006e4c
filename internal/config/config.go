// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Emitter  EmitterConfig  `mapstructure:"emitter"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	Filters  FiltersConfig  `mapstructure:"filters"`
	Metadata MetadataConfig `mapstructure:"metadata"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkersConfig controls the consume-loop fan-out.
type WorkersConfig struct {
	Count int `mapstructure:"count"`
}

// QueueConfig selects and configures the inbound item source.
type QueueConfig struct {
	Provider string         `mapstructure:"provider"`
	Depth    int            `mapstructure:"depth"`
	GCP      QueueGCPConfig `mapstructure:"gcp"`
}

// QueueGCPConfig holds Pub/Sub subscription coordinates.
type QueueGCPConfig struct {
	ProjectID      string `mapstructure:"project_id"`
	SubscriptionID string `mapstructure:"subscription_id"`
}

// EmitterConfig selects and configures the outbound channels.
type EmitterConfig struct {
	Provider string           `mapstructure:"provider"`
	GCP      EmitterGCPConfig `mapstructure:"gcp"`
}

// EmitterGCPConfig holds the Pub/Sub topic coordinates for both channels.
type EmitterGCPConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	MainTopic   string `mapstructure:"main_topic"`
	StatusTopic string `mapstructure:"status_topic"`
}

// ArchiveConfig controls raw sitemap persistence.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    ArchiveLocalParams `mapstructure:"local"`
	GCS      ArchiveGCSParams   `mapstructure:"gcs"`
}

// ArchiveLocalParams configures the filesystem archive backend.
type ArchiveLocalParams struct {
	BaseDir string `mapstructure:"base_dir"`
}

// ArchiveGCSParams configures the GCS archive backend.
type ArchiveGCSParams struct {
	Bucket string `mapstructure:"bucket"`
}

// SitemapConfig governs detection, parsing, and extraction behavior.
type SitemapConfig struct {
	SniffContent             bool `mapstructure:"sniff_content"`
	FilterHoursSinceModified int  `mapstructure:"filter_hours_since_modified"`
	StrictParsing            bool `mapstructure:"strict_parsing"`
}

// FiltersConfig configures the URL and parse filter chains.
type FiltersConfig struct {
	URL   URLFiltersConfig   `mapstructure:"url"`
	Parse ParseFiltersConfig `mapstructure:"parse"`
}

// URLFiltersConfig configures the outlink URL filter chain.
type URLFiltersConfig struct {
	DenyHosts []string `mapstructure:"deny_hosts"`
	Include   []string `mapstructure:"include"`
	Exclude   []string `mapstructure:"exclude"`
	Normalize bool     `mapstructure:"normalize"`
	MaxLength int      `mapstructure:"max_length"`
}

// ParseFiltersConfig configures the whole-result parse filter chain.
type ParseFiltersConfig struct {
	MaxOutlinks int  `mapstructure:"max_outlinks"`
	Dedupe      bool `mapstructure:"dedupe"`
}

// MetadataConfig governs metadata inheritance for outlinks.
type MetadataConfig struct {
	Transfer   []string `mapstructure:"transfer"`
	TrackDepth bool     `mapstructure:"track_depth"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEMAP_STAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("workers.count", 4)
	v.SetDefault("queue.provider", "memory")
	v.SetDefault("queue.depth", 64)
	v.SetDefault("emitter.provider", "memory")
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.prefix", "sitemaps")
	v.SetDefault("sitemap.sniff_content", false)
	v.SetDefault("sitemap.filter_hours_since_modified", -1)
	v.SetDefault("sitemap.strict_parsing", false)
	v.SetDefault("filters.url.normalize", true)
	v.SetDefault("filters.url.max_length", 0)
	v.SetDefault("filters.parse.max_outlinks", 0)
	v.SetDefault("filters.parse.dedupe", true)
	v.SetDefault("metadata.track_depth", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	switch c.Queue.Provider {
	case "memory":
		if c.Queue.Depth <= 0 {
			return fmt.Errorf("queue.depth must be > 0 for the memory provider")
		}
	case "pubsub":
		if c.Queue.GCP.ProjectID == "" || c.Queue.GCP.SubscriptionID == "" {
			return fmt.Errorf("queue.gcp.project_id and queue.gcp.subscription_id must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("queue.provider must be memory or pubsub, got %q", c.Queue.Provider)
	}
	switch c.Emitter.Provider {
	case "memory":
	case "pubsub":
		gcp := c.Emitter.GCP
		if gcp.ProjectID == "" || gcp.MainTopic == "" || gcp.StatusTopic == "" {
			return fmt.Errorf("emitter.gcp.project_id, main_topic, and status_topic must be set for the pubsub provider")
		}
	default:
		return fmt.Errorf("emitter.provider must be memory or pubsub, got %q", c.Emitter.Provider)
	}
	switch c.Archive.Provider {
	case "noop", "memory":
	case "local":
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.local.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.gcs.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider must be noop, memory, local, or gcs, got %q", c.Archive.Provider)
	}
	if c.Sitemap.FilterHoursSinceModified < -1 {
		return fmt.Errorf("sitemap.filter_hours_since_modified must be >= -1")
	}
	return nil
}
