// Package app assembles the rehydration pipeline from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/rehydrator/internal/config"
	"github.com/dharsanguruparan/rehydrator/internal/database"
	"github.com/dharsanguruparan/rehydrator/internal/ingest"
	"github.com/dharsanguruparan/rehydrator/internal/outcome"
	"github.com/dharsanguruparan/rehydrator/internal/rehydration"
	"github.com/dharsanguruparan/rehydrator/internal/repository"
	"github.com/dharsanguruparan/rehydrator/internal/s3storage"
)

// Pipeline is a ready-to-run orchestrator plus whatever must be closed after.
type Pipeline struct {
	Orchestrator *ingest.Orchestrator
	JobID        string
	closers      []func()
}

// Close releases the storage connections opened by Build.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// Build creates the directories, the API client and the sink selected by
// cfg.Rehydration.Storage, and wires them into an orchestrator.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Pipeline, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	p := &Pipeline{JobID: uuid.NewString()}

	sink, err := p.openSink(ctx, cfg, log)
	if err != nil {
		p.Close()
		return nil, err
	}

	client, err := rehydration.NewClient(rehydration.Options{
		BaseURL:           cfg.Account.BaseURL,
		AccountName:       cfg.Account.AccountName,
		Publisher:         cfg.Account.Publisher,
		UserName:          cfg.Account.UserName,
		Password:          cfg.Account.Password,
		Timeout:           cfg.Rehydration.RequestTimeout,
		Attempts:          cfg.Rehydration.RetryAttempts,
		RequestsPerMinute: cfg.Rehydration.RequestsPerMinute,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("init rehydration client: %w", err)
	}

	r := cfg.Rehydration
	router := outcome.NewRouter(outcome.RouterOptions{
		Sink:            sink,
		KeepDetailFiles: r.KeepNAFiles,
		NADir:           r.OutBoxNA,
		OldDir:          r.OutBoxOld,
		Logger:          log,
	})
	p.Orchestrator = ingest.New(ingest.Options{
		Requester: rehydration.NewRequester(client, r.BatchSize),
		Router:    router,
		NADir:     r.OutBoxNA,
		OldDir:    r.OutBoxOld,
		Logger:    log,
	})
	return p, nil
}

func (p *Pipeline) openSink(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (outcome.ActivitySink, error) {
	switch cfg.Rehydration.Storage {
	case config.StorageDatabase:
		pool, err := database.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		p.closers = append(p.closers, pool.Close)
		log.WithField("host", cfg.Database.Host).Info("storing activities in database")
		return repository.NewActivityRepository(pool, p.JobID), nil
	case config.StorageS3:
		store, err := s3storage.New(cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		log.WithField("bucket", cfg.ObjectStore.Bucket).Info("storing activities in object store")
		return store, nil
	default:
		log.WithField("out_box", cfg.Rehydration.OutBox).Info("storing activities as files")
		return outcome.NewFileSink(cfg.Rehydration.OutBox), nil
	}
}
