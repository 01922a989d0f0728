package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", `
output:
  root: /data/stream
  location: UTC
queue:
  capacity: 64
filter:
  terms: ["golang", "gopher"]
  follow_ids: [12, 34]
  languages: ["en"]
  geo_boxes: ["40.0,-75.0,41.0,-73.0"]
  level: low
  combine: true
media:
  enabled: true
  request_timeout: 5s
  host_rps: 2.5
source:
  kind: nats
  nats:
    url: nats://127.0.0.1:4222
archive:
  kind: s3
  bucket: hours
  prefix: raw
  notify: nats
  nats_url: nats://127.0.0.1:4222
  topic: tweetstream.archived
logging:
  debug: true
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Output.Root != "/data/stream" || cfg.Output.Location != "UTC" {
		t.Fatalf("expected output overrides, got %+v", cfg.Output)
	}
	if cfg.Queue.Capacity != 64 {
		t.Fatalf("expected capacity 64, got %d", cfg.Queue.Capacity)
	}
	if len(cfg.Filter.Terms) != 2 || len(cfg.Filter.FollowIDs) != 2 || cfg.Filter.FollowIDs[1] != 34 {
		t.Fatalf("expected filter lists to load, got %+v", cfg.Filter)
	}
	if !cfg.Filter.Combine || cfg.Filter.ParsedLevel() != "low" {
		t.Fatalf("expected combine and low level, got %+v", cfg.Filter)
	}
	if !cfg.Media.Enabled || cfg.Media.RequestTimeout != 5*time.Second || cfg.Media.HostRPS != 2.5 {
		t.Fatalf("expected media overrides, got %+v", cfg.Media)
	}
	if cfg.Source.Kind != SourceNATS || cfg.Source.NATS.Subject != "tweetstream.raw" {
		t.Fatalf("expected nats source with default subject, got %+v", cfg.Source)
	}
	if cfg.Archive.Kind != ArchiveS3 || cfg.Archive.Bucket != "hours" || cfg.Archive.Notify != NotifyNATS {
		t.Fatalf("expected archive overrides, got %+v", cfg.Archive)
	}
	if !cfg.Logging.Debug {
		t.Fatalf("expected debug logging")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "filter:\n  languages: [\"fr\"]\n")
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Capacity != 2048 {
		t.Fatalf("expected default capacity 2048, got %d", cfg.Queue.Capacity)
	}
	if cfg.Output.Root != "output" {
		t.Fatalf("expected default output root, got %q", cfg.Output.Root)
	}
	if cfg.Media.RequestTimeout != 30*time.Second {
		t.Fatalf("expected default media timeout 30s, got %v", cfg.Media.RequestTimeout)
	}
	if cfg.Source.Kind != SourceTwitter || cfg.Source.Twitter.StallTimeout != 90*time.Second {
		t.Fatalf("expected twitter source defaults, got %+v", cfg.Source)
	}
	if cfg.Archive.Kind != ArchiveNone {
		t.Fatalf("expected archive disabled, got %q", cfg.Archive.Kind)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INGEST_QUEUE_CAPACITY", "7")
	t.Setenv("INGEST_FILTER_TERMS", "alpha,beta")
	t.Setenv("INGEST_ADMIN_ADDR", "127.0.0.1:9000")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Capacity != 7 {
		t.Fatalf("expected env capacity 7, got %d", cfg.Queue.Capacity)
	}
	if strings.Join(cfg.Filter.Terms, "|") != "alpha|beta" {
		t.Fatalf("expected env terms, got %v", cfg.Filter.Terms)
	}
	if cfg.Admin.Addr != "127.0.0.1:9000" {
		t.Fatalf("expected admin addr from env, got %q", cfg.Admin.Addr)
	}
}

func TestLoadFlags(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("stream", pflag.ContinueOnError)
	AddFlags(fs)
	err := fs.Parse([]string{
		"-t", "go", "--term", "rust",
		"-u", "1,2",
		"-g", "40,-75,41,-73", "-g", "-10,-10,10,10",
		"-q", "16",
		"-i",
		"--filter-level", "medium",
		"-o", "/tmp/out",
	})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if strings.Join(cfg.Filter.Terms, "|") != "go|rust" {
		t.Fatalf("expected flag terms, got %v", cfg.Filter.Terms)
	}
	if len(cfg.Filter.FollowIDs) != 2 || cfg.Filter.FollowIDs[0] != 1 {
		t.Fatalf("expected flag user ids, got %v", cfg.Filter.FollowIDs)
	}
	if len(cfg.Filter.GeoBoxes) != 2 || cfg.Filter.GeoBoxes[0] != "40,-75,41,-73" {
		t.Fatalf("expected two intact geo boxes, got %v", cfg.Filter.GeoBoxes)
	}
	if cfg.Queue.Capacity != 16 || !cfg.Media.Enabled {
		t.Fatalf("expected scalar flags to bind, got queue=%d media=%v", cfg.Queue.Capacity, cfg.Media.Enabled)
	}
	if cfg.Filter.Level != "medium" || cfg.Output.Root != "/tmp/out" {
		t.Fatalf("expected level and output flags, got %q %q", cfg.Filter.Level, cfg.Output.Root)
	}
}

func TestLoadRejectsBadUserID(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("stream", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"-u", "not-a-number"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := Load("", fs); err == nil || !strings.Contains(err.Error(), "invalid user id") {
		t.Fatalf("expected invalid user id error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Output: OutputConfig{Root: "out"},
		Queue:  QueueConfig{Capacity: 1},
		Filter: FilterConfig{Terms: []string{"go"}},
		Media:  MediaConfig{RequestTimeout: time.Second},
		Source: SourceConfig{Kind: SourceTwitter},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no filter", func(c *Config) { c.Filter = FilterConfig{} }, "at least one of"},
		{"handles only", func(c *Config) { c.Filter = FilterConfig{FollowHandles: []string{"golang"}} }, ""},
		{"queue", func(c *Config) { c.Queue.Capacity = 0 }, "queue.capacity must be > 0"},
		{"output", func(c *Config) { c.Output.Root = " " }, "output.root must be set"},
		{"location", func(c *Config) { c.Output.Location = "Mars/Olympus" }, "output.location"},
		{"level", func(c *Config) { c.Filter.Level = "high" }, "filter.level"},
		{"geo box", func(c *Config) { c.Filter.GeoBoxes = []string{"1,2,3"} }, "filter.geo_boxes"},
		{"media timeout", func(c *Config) { c.Media = MediaConfig{Enabled: true} }, "media.request_timeout"},
		{"source kind", func(c *Config) { c.Source.Kind = "kafka" }, "unknown source.kind"},
		{"nats url", func(c *Config) { c.Source.Kind = SourceNATS; c.Source.NATS.Subject = "s" }, "source.nats.url"},
		{"nats handles", func(c *Config) {
			c.Source = SourceConfig{Kind: SourceNATS, NATS: NATSSourceConfig{URL: "nats://x", Subject: "s"}}
			c.Filter.FollowHandles = []string{"golang"}
		}, "follow_handles"},
		{"archive local", func(c *Config) { c.Archive.Kind = ArchiveLocal }, "archive.dir"},
		{"archive gcs", func(c *Config) { c.Archive.Kind = ArchiveGCS }, "archive.bucket"},
		{"archive kind", func(c *Config) { c.Archive.Kind = "ftp" }, "unknown archive.kind"},
		{"notify pubsub", func(c *Config) {
			c.Archive = ArchiveConfig{Kind: ArchiveS3, Bucket: "b", Notify: NotifyPubSub}
		}, "archive.project_id"},
		{"notify kind", func(c *Config) {
			c.Archive = ArchiveConfig{Kind: ArchiveS3, Bucket: "b", Notify: "smtp"}
		}, "unknown archive.notify"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateNoFilterIsSentinel(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Filter = FilterConfig{}
	if err := cfg.Validate(); !errors.Is(err, ErrNoFilter) {
		t.Fatalf("expected ErrNoFilter, got %v", err)
	}
}
