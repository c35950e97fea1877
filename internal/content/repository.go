package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeblew999/chronomaps/internal/baserow"
	"github.com/joeblew999/chronomaps/internal/stream"
)

// ErrNotReady is returned when no snapshot has been loaded yet.
var ErrNotReady = errors.New("content not ready")

// Source fetches a complete snapshot.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// SnapshotStore caches snapshots between restarts.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, slug string) (Snapshot, bool, error)
	SaveSnapshot(ctx context.Context, slug string, s Snapshot) error
}

// BaserowSource reads a chronomap database.
type BaserowSource struct {
	client *baserow.Client
	now    func() time.Time
}

// NewBaserowSource wraps a client.
func NewBaserowSource(client *baserow.Client) *BaserowSource {
	return &BaserowSource{client: client, now: time.Now}
}

// Fetch reads the Settings, MapLayers, Authors and Content tables. Only the
// Content table is required.
func (s *BaserowSource) Fetch(ctx context.Context) (Snapshot, error) {
	s.client.Invalidate()

	optional := func(name string) ([]baserow.Row, error) {
		rows, err := s.client.TableRows(ctx, name)
		if errors.Is(err, baserow.ErrTableNotFound) {
			return nil, nil
		}
		return rows, err
	}

	settings, err := optional("Settings")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch settings: %w", err)
	}
	layers, err := optional("MapLayers")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch map layers: %w", err)
	}
	authors, err := optional("Authors")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch authors: %w", err)
	}
	rows, err := s.client.TableRows(ctx, "Content")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch content: %w", err)
	}

	items, all := ParseItems(layers, authors, rows)
	return Snapshot{
		Settings:  ParseSettings(settings),
		Layers:    all,
		Items:     items,
		FetchedAt: s.now(),
	}, nil
}

// Repository holds the current snapshot of one chronomap and publishes
// every refresh. Ready fires once, on the first snapshot; Updated replays
// the latest snapshot to new subscribers.
type Repository struct {
	slug     string
	source   Source
	store    SnapshotStore
	interval time.Duration
	logger   *slog.Logger

	ready   *stream.Once
	updated *stream.Replay[Snapshot]

	mu      sync.Mutex
	lastErr error
}

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	Slug         string
	Store        SnapshotStore
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewRepository creates a repository over source.
func NewRepository(source Source, opts RepositoryOptions) *Repository {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		slug:     opts.Slug,
		source:   source,
		store:    opts.Store,
		interval: opts.PollInterval,
		logger:   logger.With("component", "content", "chronomap", opts.Slug),
		ready:    stream.NewOnce(),
		updated:  stream.NewReplay[Snapshot](),
	}
}

// Ready fires once the first snapshot is available.
func (r *Repository) Ready() *stream.Once { return r.ready }

// Updated publishes every snapshot.
func (r *Repository) Updated() *stream.Replay[Snapshot] { return r.updated }

// Current returns the latest snapshot.
func (r *Repository) Current() (Snapshot, error) {
	s, ok := r.updated.Last()
	if !ok {
		return Snapshot{}, ErrNotReady
	}
	return s, nil
}

// LastError returns the error of the most recent failed refresh.
func (r *Repository) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Warm publishes the cached snapshot, if the store has one.
func (r *Repository) Warm(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	s, ok, err := r.store.LoadSnapshot(ctx, r.slug)
	if err != nil {
		return fmt.Errorf("load cached snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	ResolveRelated(s.Items)
	r.publish(s)
	r.logger.Info("warmed from cache", "items", len(s.Items), "fetched_at", s.FetchedAt)
	return nil
}

// Refresh fetches a new snapshot and publishes it.
func (r *Repository) Refresh(ctx context.Context) error {
	s, err := r.source.Fetch(ctx)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		return err
	}

	r.publish(s)
	if r.store != nil {
		if err := r.store.SaveSnapshot(ctx, r.slug, s); err != nil {
			r.logger.Warn("cache snapshot", "error", err)
		}
	}
	r.logger.Debug("refreshed", "items", len(s.Items))
	return nil
}

// Run warms from the cache, refreshes, then keeps polling until ctx ends.
// Fetch failures are logged and retried on the next tick.
func (r *Repository) Run(ctx context.Context) error {
	if err := r.Warm(ctx); err != nil {
		r.logger.Warn("warm", "error", err)
	}
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("initial refresh", "error", err)
	}
	if r.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("refresh", "error", err)
			}
		}
	}
}

func (r *Repository) publish(s Snapshot) {
	r.updated.Publish(s)
	r.ready.Fire()
}
