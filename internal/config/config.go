// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/tweetstream/internal/filter"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Output  OutputConfig  `mapstructure:"output"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Media   MediaConfig   `mapstructure:"media"`
	Source  SourceConfig  `mapstructure:"source"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Control ControlConfig `mapstructure:"control"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// OutputConfig locates run directories.
type OutputConfig struct {
	Root string `mapstructure:"root"`
	// Location is the time zone used for run and hour file names. Empty
	// means the host's local zone.
	Location string `mapstructure:"location"`
}

// QueueConfig sizes the bounded queue between listener and writer.
type QueueConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// FilterConfig holds the raw filter inputs before handle resolution.
type FilterConfig struct {
	Terms         []string `mapstructure:"terms"`
	FollowIDs     []int64  `mapstructure:"follow_ids"`
	FollowHandles []string `mapstructure:"follow_handles"`
	Languages     []string `mapstructure:"languages"`
	GeoBoxes      []string `mapstructure:"geo_boxes"`
	Level         string   `mapstructure:"level"`
	Combine       bool     `mapstructure:"combine"`
}

// MediaConfig governs the media harvester.
type MediaConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	UserAgent      string        `mapstructure:"user_agent"`
	HostRPS        float64       `mapstructure:"host_rps"`
	HostBurst      int           `mapstructure:"host_burst"`
}

// SourceConfig selects and configures the push source.
type SourceConfig struct {
	Kind    string              `mapstructure:"kind"`
	Twitter TwitterSourceConfig `mapstructure:"twitter"`
	NATS    NATSSourceConfig    `mapstructure:"nats"`
}

// TwitterSourceConfig configures the filtered stream connection.
type TwitterSourceConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	APIBaseURL      string        `mapstructure:"api_base_url"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	StallTimeout    time.Duration `mapstructure:"stall_timeout"`
}

// NATSSourceConfig configures the NATS subject source.
type NATSSourceConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// AdminConfig controls the admin HTTP server. Empty Addr disables it.
type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

// ControlConfig enables the stdin quit command.
type ControlConfig struct {
	Stdin bool `mapstructure:"stdin"`
}

// ArchiveConfig configures hour file uploads and notifications.
type ArchiveConfig struct {
	Kind      string `mapstructure:"kind"`
	Dir       string `mapstructure:"dir"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Notify    string `mapstructure:"notify"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	NATSURL   string `mapstructure:"nats_url"`
}

// LoggingConfig toggles zap development features and debug summaries.
type LoggingConfig struct {
	Debug bool   `mapstructure:"debug"`
	Level string `mapstructure:"level"`
}

// Source and archive kinds.
const (
	SourceTwitter = "twitter"
	SourceNATS    = "nats"

	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
	ArchiveS3    = "s3"

	NotifyNone   = "none"
	NotifyPubSub = "pubsub"
	NotifyNATS   = "nats"
)

// ErrNoFilter is returned when no filter dimension is configured.
var ErrNoFilter = errors.New("at least one of terms, user ids, handles, languages or geo boxes is required")

// Flag names registered by AddFlags.
const (
	FlagConfig       = "config"
	FlagTerm         = "term"
	FlagUserID       = "user-id"
	FlagHandle       = "handle"
	FlagLanguage     = "language"
	FlagGeoBox       = "geo-box"
	FlagFilterLevel  = "filter-level"
	FlagOutput       = "output"
	FlagCredentials  = "credentials"
	FlagQueueSize    = "queue-size"
	FlagIncludeMedia = "include-media"
	FlagDebug        = "debug"
)

// scalarFlags are bound straight into viper.
var scalarFlags = map[string]string{
	FlagFilterLevel:  "filter.level",
	FlagOutput:       "output.root",
	FlagCredentials:  "source.twitter.credentials_file",
	FlagQueueSize:    "queue.capacity",
	FlagIncludeMedia: "media.enabled",
	FlagDebug:        "logging.debug",
}

// AddFlags registers the stream command's flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to a config file (yaml, json or toml)")
	fs.StringSliceP(FlagTerm, "t", nil, "track term; repeat or comma-separate")
	fs.StringSliceP(FlagUserID, "u", nil, "numeric user id to follow")
	fs.StringSlice(FlagHandle, nil, "screen name to resolve and follow")
	fs.StringSliceP(FlagLanguage, "l", nil, "BCP 47 language code")
	fs.StringArrayP(FlagGeoBox, "g", nil, `bounding box "minLat,minLon,maxLat,maxLon"; repeat for more`)
	fs.String(FlagFilterLevel, "none", "minimum filter level: none, low or medium")
	fs.StringP(FlagOutput, "o", "output", "root directory for run output")
	fs.StringP(FlagCredentials, "c", "credentials.env", "dotenv file holding OAuth credentials")
	fs.IntP(FlagQueueSize, "q", defaultQueueCapacity, "maximum records buffered between listener and writer")
	fs.BoolP(FlagIncludeMedia, "i", false, "download media referenced by each record")
	fs.Bool(FlagDebug, false, "development logging and per-record summaries")
}

const defaultQueueCapacity = 2048

// Load builds a Config from disk, environment and flags. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range scalarFlags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

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

	if flags != nil {
		if err := applySliceFlags(&cfg, flags); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// applySliceFlags overrides list settings with flags the user set. Geo boxes
// contain commas, so these bypass viper's CSV handling.
func applySliceFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed(FlagTerm) {
		cfg.Filter.Terms, _ = flags.GetStringSlice(FlagTerm)
	}
	if flags.Changed(FlagHandle) {
		cfg.Filter.FollowHandles, _ = flags.GetStringSlice(FlagHandle)
	}
	if flags.Changed(FlagLanguage) {
		cfg.Filter.Languages, _ = flags.GetStringSlice(FlagLanguage)
	}
	if flags.Changed(FlagGeoBox) {
		cfg.Filter.GeoBoxes, _ = flags.GetStringArray(FlagGeoBox)
	}
	if flags.Changed(FlagUserID) {
		raw, _ := flags.GetStringSlice(FlagUserID)
		ids := make([]int64, 0, len(raw))
		for _, s := range raw {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", s, err)
			}
			ids = append(ids, id)
		}
		cfg.Filter.FollowIDs = ids
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.root", "output")
	v.SetDefault("output.location", "")
	v.SetDefault("queue.capacity", defaultQueueCapacity)
	v.SetDefault("filter.terms", []string{})
	v.SetDefault("filter.follow_ids", []int64{})
	v.SetDefault("filter.follow_handles", []string{})
	v.SetDefault("filter.languages", []string{})
	v.SetDefault("filter.geo_boxes", []string{})
	v.SetDefault("filter.level", "none")
	v.SetDefault("filter.combine", false)
	v.SetDefault("media.enabled", false)
	v.SetDefault("media.request_timeout", "30s")
	v.SetDefault("media.max_bytes", 50<<20)
	v.SetDefault("media.user_agent", "tweetstream/1.0")
	v.SetDefault("media.host_rps", 0)
	v.SetDefault("media.host_burst", 1)
	v.SetDefault("source.kind", SourceTwitter)
	v.SetDefault("source.twitter.endpoint", "https://stream.twitter.com/1.1/statuses/filter.json")
	v.SetDefault("source.twitter.api_base_url", "https://api.twitter.com/1.1/")
	v.SetDefault("source.twitter.credentials_file", "credentials.env")
	v.SetDefault("source.twitter.max_reconnects", 0)
	v.SetDefault("source.twitter.stall_timeout", "90s")
	v.SetDefault("source.nats.url", "")
	v.SetDefault("source.nats.subject", "tweetstream.raw")
	v.SetDefault("admin.addr", "")
	v.SetDefault("control.stdin", true)
	v.SetDefault("archive.kind", ArchiveNone)
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.notify", NotifyNone)
	v.SetDefault("archive.project_id", "")
	v.SetDefault("archive.topic", "")
	v.SetDefault("archive.nats_url", "")
	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output.Root) == "" {
		return fmt.Errorf("output.root must be set")
	}
	if c.Output.Location != "" {
		if _, err := time.LoadLocation(c.Output.Location); err != nil {
			return fmt.Errorf("output.location: %w", err)
		}
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be > 0")
	}
	if err := c.Filter.validate(); err != nil {
		return err
	}
	if c.Media.Enabled && c.Media.RequestTimeout <= 0 {
		return fmt.Errorf("media.request_timeout must be > 0 when media is enabled")
	}
	if c.Media.HostRPS < 0 {
		return fmt.Errorf("media.host_rps must be >= 0")
	}
	switch c.Source.Kind {
	case SourceTwitter:
		if c.Source.Twitter.MaxReconnects < 0 {
			return fmt.Errorf("source.twitter.max_reconnects must be >= 0")
		}
	case SourceNATS:
		if c.Source.NATS.URL == "" {
			return fmt.Errorf("source.nats.url must be set when source.kind is nats")
		}
		if c.Source.NATS.Subject == "" {
			return fmt.Errorf("source.nats.subject must be set when source.kind is nats")
		}
		if len(c.Filter.FollowHandles) > 0 {
			return fmt.Errorf("filter.follow_handles requires source.kind twitter")
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}
	return c.Archive.validate()
}

func (f FilterConfig) validate() error {
	if len(f.Terms) == 0 && len(f.FollowIDs) == 0 && len(f.FollowHandles) == 0 &&
		len(f.Languages) == 0 && len(f.GeoBoxes) == 0 {
		return ErrNoFilter
	}
	if _, err := filter.ParseLevel(f.Level); err != nil {
		return fmt.Errorf("filter.level: %w", err)
	}
	if _, err := filter.ParseBoxes(f.GeoBoxes); err != nil {
		return fmt.Errorf("filter.geo_boxes: %w", err)
	}
	return nil
}

func (a ArchiveConfig) validate() error {
	switch a.Kind {
	case "", ArchiveNone:
		return nil
	case ArchiveLocal:
		if a.Dir == "" {
			return fmt.Errorf("archive.dir must be set when archive.kind is local")
		}
	case ArchiveGCS, ArchiveS3:
		if a.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set when archive.kind is %s", a.Kind)
		}
	default:
		return fmt.Errorf("unknown archive.kind %q", a.Kind)
	}
	switch a.Notify {
	case "", NotifyNone:
	case NotifyPubSub:
		if a.ProjectID == "" || a.Topic == "" {
			return fmt.Errorf("archive.project_id and archive.topic must be set for pubsub notifications")
		}
	case NotifyNATS:
		if a.NATSURL == "" || a.Topic == "" {
			return fmt.Errorf("archive.nats_url and archive.topic must be set for nats notifications")
		}
	default:
		return fmt.Errorf("unknown archive.notify %q", a.Notify)
	}
	return nil
}

// ParsedLevel returns the parsed filter level. Call after Validate.
func (f FilterConfig) ParsedLevel() filter.Level {
	level, _ := filter.ParseLevel(f.Level)
	return level
}
