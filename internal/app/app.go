// Package app assembles a pipeline from configuration and owns the
// long-lived services for one run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/api"
	"github.com/JakeFAU/tweetstream/internal/archive"
	"github.com/JakeFAU/tweetstream/internal/clock/system"
	"github.com/JakeFAU/tweetstream/internal/config"
	"github.com/JakeFAU/tweetstream/internal/filter"
	"github.com/JakeFAU/tweetstream/internal/id/uuid"
	"github.com/JakeFAU/tweetstream/internal/ingest"
	"github.com/JakeFAU/tweetstream/internal/listener"
	"github.com/JakeFAU/tweetstream/internal/media"
	"github.com/JakeFAU/tweetstream/internal/queue/memory"
	"github.com/JakeFAU/tweetstream/internal/resolve"
	"github.com/JakeFAU/tweetstream/internal/shutdown"
	"github.com/JakeFAU/tweetstream/internal/source/natssrc"
	twittersrc "github.com/JakeFAU/tweetstream/internal/source/twitter"
	"github.com/JakeFAU/tweetstream/internal/writer"
)

const closeTimeout = 2 * time.Minute

// ErrEmptyFilter is returned when handle resolution leaves nothing to
// subscribe to.
var ErrEmptyFilter = errors.New("filter is empty after resolving handles")

// Options override collaborators, mainly for tests. Zero values select the
// production implementation.
type Options struct {
	// Control is read for quit commands when control.stdin is set.
	Control io.Reader
	Clock   ingest.Clock
	// HTTPClient replaces the OAuth-signed client.
	HTTPClient *http.Client
	Resolver   resolve.Resolver
	Source     ingest.Source
	// Archive replaces the configured blob store.
	Archive archive.BlobStore
	// Notifier replaces the configured notifier.
	Notifier archive.Notifier
}

// App holds the services for one run.
type App struct {
	cfg       config.Config
	opts      Options
	logger    *zap.Logger
	runID     string
	startedAt time.Time

	layout      writer.Layout
	spec        filter.Spec
	queue       *memory.Queue
	listener    *listener.Listener
	writer      *writer.Writer
	hub         *archive.Hub
	coordinator *shutdown.Coordinator
	admin       *api.Server

	cleanups []func()
}

// New builds every component and creates the run directory. A run directory
// that cannot be created is fatal.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, opts: opts}

	clock := opts.Clock
	if clock == nil {
		sys, err := system.NewIn(cfg.Output.Location)
		if err != nil {
			return nil, fmt.Errorf("output.location: %w", err)
		}
		clock = sys
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	a.runID = runID
	a.logger = logger.With(zap.String("run_id", runID))
	a.startedAt = clock.Now()

	a.layout = writer.NewLayout(cfg.Output.Root, a.startedAt)
	if err := a.layout.Create(); err != nil {
		return nil, err
	}
	a.logger.Info("run directory created", zap.String("path", a.layout.RunDir))

	httpClient, err := a.httpClient()
	if err != nil {
		a.Close()
		return nil, err
	}

	spec, err := a.buildSpec(ctx, httpClient)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.spec = spec

	src := opts.Source
	if src == nil {
		src = a.buildSource(httpClient)
	}

	a.queue = memory.NewQueue(cfg.Queue.Capacity)
	a.listener = listener.New(src, spec, a.queue, a.logger)

	var archiver writer.Archiver
	hub, err := a.buildArchive(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if hub != nil {
		a.hub = hub
		archiver = hub
	}

	var harvester writer.Harvester
	if cfg.Media.Enabled {
		harvester = a.buildHarvester()
	}

	a.writer = writer.New(a.queue, clock, harvester, archiver, a.layout, writer.Config{
		IncludeMedia: cfg.Media.Enabled,
		Info:         a.info(),
	}, a.logger)

	a.coordinator = shutdown.New(a.listener, a.writer, closeTimeout, a.logger)
	if a.hub != nil {
		a.coordinator.AddCloser("archive", a.hub.Close)
	}

	if cfg.Admin.Addr != "" {
		a.admin = api.NewServer(api.StatusFunc(a.Status), a.coordinator, a.logger)
	}
	return a, nil
}

// Run streams until a shutdown trigger fires and the pipeline drains. The
// returned error is the source's fatal error, if any.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if a.cfg.Control.Stdin && a.opts.Control != nil {
		go shutdown.WatchControl(a.opts.Control, a.coordinator)
		a.logger.Info("type q or quit and press enter to stop")
	}

	adminCtx, stopAdmin := context.WithCancel(context.Background())
	adminDone := make(chan struct{})
	if a.admin != nil {
		go func() {
			defer close(adminDone)
			if err := a.admin.Serve(adminCtx, a.cfg.Admin.Addr); err != nil {
				a.logger.Error("admin server failed", zap.Error(err))
			}
		}()
	} else {
		close(adminDone)
	}

	a.logger.Info("streaming started",
		zap.String("source", a.cfg.Source.Kind),
		zap.Strings("dimensions", dimensionNames(a.spec.Query().Dimensions())),
		zap.Int("queue_size", a.queue.Cap()),
		zap.Bool("include_media", a.cfg.Media.Enabled),
	)

	err := a.coordinator.Run(ctx)

	stopAdmin()
	<-adminDone

	ls := a.listener.Stats()
	ws := a.writer.Stats()
	fields := []zap.Field{
		zap.String("reason", a.coordinator.Reason()),
		zap.Int64("received", ls.Received),
		zap.Int64("dropped", ls.Dropped),
		zap.Int64("written", ws.Written),
		zap.Int64("failed", ws.Failed),
	}
	if a.hub != nil {
		fields = append(fields, zap.Int64("archived", a.hub.Uploaded()))
	}
	a.logger.Info("run finished", fields...)
	return err
}

// Status snapshots pipeline state for the admin server.
func (a *App) Status() api.Status {
	st := api.Status{
		RunID:         a.runID,
		RunDir:        a.layout.RunDir,
		StartedAt:     a.startedAt,
		Listener:      a.listener.Stats(),
		Writer:        a.writer.Stats(),
		QueueDepth:    a.queue.Len(),
		QueueCapacity: a.queue.Cap(),
	}
	if a.hub != nil {
		st.Archived = a.hub.Uploaded()
	}
	return st
}

// RunID returns the run's identifier.
func (a *App) RunID() string { return a.runID }

// Layout returns the run's directory layout.
func (a *App) Layout() writer.Layout { return a.layout }

// Shutdown requests a graceful stop, as a test harness or embedding program
// would.
func (a *App) Shutdown(reason string) { a.coordinator.Request(reason) }

// Close releases clients opened by New. It is safe to call more than once.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *App) httpClient() (*http.Client, error) {
	if a.opts.HTTPClient != nil {
		return a.opts.HTTPClient, nil
	}
	streams := a.opts.Source == nil && a.cfg.Source.Kind == config.SourceTwitter
	resolves := a.opts.Resolver == nil && len(a.cfg.Filter.FollowHandles) > 0
	if !streams && !resolves {
		return nil, nil
	}
	creds, err := config.LoadCredentials(a.cfg.Source.Twitter.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return twittersrc.NewOAuthClient(creds), nil
}

func (a *App) buildSpec(ctx context.Context, httpClient *http.Client) (filter.Spec, error) {
	fc := a.cfg.Filter
	ids := append([]int64(nil), fc.FollowIDs...)
	if len(fc.FollowHandles) > 0 {
		r := a.opts.Resolver
		if r == nil {
			client := httpClient
			if base := a.cfg.Source.Twitter.APIBaseURL; base != "" {
				rebased, err := resolve.Rebase(httpClient, base)
				if err != nil {
					return filter.Spec{}, err
				}
				client = rebased
			}
			r = resolve.NewTwitterResolver(client)
		}
		ids = append(ids, resolve.ResolveAll(ctx, r, fc.FollowHandles, a.logger)...)
	}
	boxes, err := filter.ParseBoxes(fc.GeoBoxes)
	if err != nil {
		return filter.Spec{}, fmt.Errorf("filter.geo_boxes: %w", err)
	}
	spec, err := filter.Build(filter.Params{
		Terms:     fc.Terms,
		FollowIDs: ids,
		Languages: fc.Languages,
		GeoBoxes:  boxes,
		Level:     fc.ParsedLevel(),
		Combine:   fc.Combine,
	}, a.logger)
	if err != nil {
		return filter.Spec{}, err
	}
	if spec.Empty() {
		return filter.Spec{}, ErrEmptyFilter
	}
	return spec, nil
}

func (a *App) buildSource(httpClient *http.Client) ingest.Source {
	switch a.cfg.Source.Kind {
	case config.SourceNATS:
		return natssrc.New(natssrc.Config{
			URL:     a.cfg.Source.NATS.URL,
			Subject: a.cfg.Source.NATS.Subject,
		}, a.logger)
	default:
		tc := a.cfg.Source.Twitter
		return twittersrc.New(twittersrc.Config{
			Endpoint:      tc.Endpoint,
			MaxReconnects: tc.MaxReconnects,
			StallTimeout:  tc.StallTimeout,
		}, httpClient, a.logger)
	}
}

func (a *App) buildHarvester() *media.Harvester {
	mc := a.cfg.Media
	fetcher := media.NewCollyFetcher(media.FetcherConfig{
		UserAgent:    mc.UserAgent,
		Timeout:      mc.RequestTimeout,
		MaxBodyBytes: mc.MaxBytes,
	})
	var limiter media.Waiter
	if mc.HostRPS > 0 {
		limiter = media.NewHostLimiter(mc.HostRPS, mc.HostBurst)
	}
	return media.NewHarvester(fetcher, limiter, a.logger)
}

// info is the configuration snapshot written to info.json.
func (a *App) info() map[string]any {
	info := a.spec.Info()
	info["run_id"] = a.runID
	info["started_at"] = a.startedAt.Format(time.RFC3339)
	info["source"] = a.cfg.Source.Kind
	info["include_media"] = a.cfg.Media.Enabled
	info["queue_size"] = a.cfg.Queue.Capacity
	if len(a.cfg.Filter.FollowHandles) > 0 {
		info["handles"] = a.cfg.Filter.FollowHandles
	}
	if a.cfg.Archive.Kind != "" && a.cfg.Archive.Kind != config.ArchiveNone {
		info["archive"] = a.cfg.Archive.Kind
	}
	return info
}

func dimensionNames(dims []filter.Dimension) []string {
	out := make([]string, 0, len(dims))
	for _, d := range dims {
		out = append(out, string(d))
	}
	return out
}
