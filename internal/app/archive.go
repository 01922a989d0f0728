package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/tweetstream/internal/archive"
	gcsarchive "github.com/JakeFAU/tweetstream/internal/archive/gcs"
	localarchive "github.com/JakeFAU/tweetstream/internal/archive/local"
	"github.com/JakeFAU/tweetstream/internal/archive/notify"
	s3archive "github.com/JakeFAU/tweetstream/internal/archive/s3"
	"github.com/JakeFAU/tweetstream/internal/config"
)

// buildArchive returns nil when archiving is disabled.
func (a *App) buildArchive(ctx context.Context) (*archive.Hub, error) {
	ac := a.cfg.Archive
	store := a.opts.Archive
	if store == nil {
		var err error
		store, err = a.buildBlobStore(ctx, ac)
		if err != nil {
			return nil, err
		}
	}
	if store == nil {
		return nil, nil
	}

	notifier := a.opts.Notifier
	if notifier == nil {
		var err error
		notifier, err = a.buildNotifier(ctx, ac)
		if err != nil {
			return nil, err
		}
	}

	a.logger.Info("archiving hour files",
		zap.String("kind", ac.Kind),
		zap.String("prefix", ac.Prefix),
		zap.String("notify", ac.Notify),
	)
	return archive.NewHub(archive.Config{
		RunID:   a.runID,
		RunName: a.layout.RunName(),
		Prefix:  ac.Prefix,
		Logger:  a.logger,
	}, store, notifier), nil
}

func (a *App) buildBlobStore(ctx context.Context, ac config.ArchiveConfig) (archive.BlobStore, error) {
	switch ac.Kind {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		store, err := localarchive.New(localarchive.Config{BaseDir: ac.Dir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		return store, nil
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		a.cleanups = append(a.cleanups, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("closing storage client", zap.Error(err))
			}
		})
		store, err := gcsarchive.New(client, gcsarchive.Config{
			Bucket:   ac.Bucket,
			Metadata: map[string]string{"run_id": a.runID},
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		return store, nil
	case config.ArchiveS3:
		store, err := s3archive.New(ctx, s3archive.Config{
			Bucket:   ac.Bucket,
			Region:   ac.Region,
			Endpoint: ac.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive.kind %q", ac.Kind)
	}
}

func (a *App) buildNotifier(ctx context.Context, ac config.ArchiveConfig) (archive.Notifier, error) {
	switch ac.Notify {
	case "", config.NotifyNone:
		return nil, nil
	case config.NotifyPubSub:
		client, err := pubsub.NewClient(ctx, ac.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		n := notify.NewPubSub(client.Topic(ac.Topic))
		a.cleanups = append(a.cleanups, func() {
			n.Close()
			if err := client.Close(); err != nil {
				a.logger.Warn("closing pubsub client", zap.Error(err))
			}
		})
		return n, nil
	case config.NotifyNATS:
		n, err := notify.NewNATS(ac.NATSURL, ac.Topic)
		if err != nil {
			return nil, err
		}
		a.cleanups = append(a.cleanups, n.Close)
		return n, nil
	default:
		return nil, fmt.Errorf("unknown archive.notify %q", ac.Notify)
	}
}
