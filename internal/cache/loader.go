// Copyright 2025 FabricMesh, Inc. All Rights Reserved.

package cache

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Puller is the bulk-pull collaborator: it fetches the full current
// server-side set for a kind. The transport decides between streaming and
// batch semantics; the loader consumes the result as a finite slice.
type Puller interface {
	BulkPull(ctx context.Context, kind Kind) ([]Resource, error)
}

// LoaderConfig holds the configuration for creating a new Loader.
type LoaderConfig struct {
	Store      *Store
	Puller     Puller
	BaseLogger *zap.Logger
}

// Loader seeds the store with the full server-side state, one bulk-pull call
// per tracked kind. Inserts are unconditional, so the loader is meant to run
// once, early, before push traffic for a kind is expected to have been missed;
// a load racing a fresher pushed record is a bounded, self-correcting
// inconsistency (the next push wins the revision comparison).
type Loader struct {
	store  *Store
	puller Puller
	logger *zap.Logger
}

// New creates a Loader from the config.
func (c LoaderConfig) New() *Loader {
	return &Loader{
		store:  c.Store,
		puller: c.Puller,
		logger: c.BaseLogger.With(zap.String("component", "bulk_loader")),
	}
}

// LoadAll seeds every tracked kind. A transport failure for one kind does not
// undo or prevent the load of another; all per-kind failures are accumulated
// into the returned error and the cache stays usable (possibly empty) for the
// kinds that failed.
func (l *Loader) LoadAll(ctx context.Context) error {
	var errs error

	for _, kind := range l.store.Kinds() {
		if err := l.loadKind(ctx, kind); err != nil {
			l.logger.Error("Cannot seed resource kind",
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (l *Loader) loadKind(ctx context.Context, kind Kind) error {
	resources, err := l.puller.BulkPull(ctx, kind)
	if err != nil {
		return fmt.Errorf("bulk pull %s: %w", kind, err)
	}

	for _, resource := range resources {
		if err := l.store.Put(kind, resource); err != nil {
			return err
		}
	}

	l.logger.Info("Seeded resource kind",
		zap.String("kind", kind.String()),
		zap.Int("count", len(resources)),
	)
	return nil
}
