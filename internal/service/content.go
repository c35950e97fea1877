package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeblew999/chronomaps/internal/baserow"
	"github.com/joeblew999/chronomaps/internal/content"
)

// SourceFunc builds the content source of a chronomap.
type SourceFunc func(m Chronomap) content.Source

// ContentOptions configures a ContentService.
type ContentOptions struct {
	// Endpoint is the Baserow API used by chronomaps that name none.
	Endpoint     string
	PollInterval time.Duration
	Store        content.SnapshotStore
	// Source overrides the Baserow source, mainly for tests.
	Source SourceFunc
	Logger *slog.Logger
}

type runningRepo struct {
	repo   *content.Repository
	cancel context.CancelFunc
	done   chan struct{}
}

// ContentService owns one polling content.Repository per chronomap. A
// repository is started on first use and restarted when its chronomap
// changes.
type ContentService struct {
	maps   *ChronomapService
	bus    *EventBus
	opts   ContentOptions
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	repos map[string]*runningRepo
	wg    sync.WaitGroup
}

// NewContentService creates the service. Repositories poll until Close.
func NewContentService(maps *ChronomapService, bus *EventBus, opts ContentOptions) *ContentService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Source == nil {
		endpoint := opts.Endpoint
		opts.Source = func(m Chronomap) content.Source {
			ep := m.Endpoint
			if ep == "" {
				ep = endpoint
			}
			return content.NewBaserowSource(baserow.New(ep, m.DatabaseToken, m.DatabaseID))
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &ContentService{
		maps:   maps,
		bus:    bus,
		opts:   opts,
		logger: opts.Logger.With("component", "content-service"),
		ctx:    ctx,
		cancel: cancel,
		repos:  make(map[string]*runningRepo),
	}
	if bus != nil {
		s.watch(bus.Subscribe())
	}
	return s
}

// watch drops repositories whose chronomap was updated or deleted.
func (s *ContentService) watch(events chan Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.bus.Unsubscribe(events)
		for {
			select {
			case <-s.ctx.Done():
				return
			case e := <-events:
				if e.Resource == "chronomaps" && (e.Action == "updated" || e.Action == "deleted") {
					s.stop(e.ID)
				}
			}
		}
	}()
}

// Repository returns the running repository of slug, starting it if
// needed.
func (s *ContentService) Repository(slug string) (*content.Repository, error) {
	m, ok := s.maps.Get(slug)
	if !ok {
		return nil, fmt.Errorf("chronomap %q: %w", slug, ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil, s.ctx.Err()
	}
	if r, ok := s.repos[slug]; ok {
		return r.repo, nil
	}

	repo := content.NewRepository(s.opts.Source(m), content.RepositoryOptions{
		Slug:         slug,
		Store:        s.opts.Store,
		PollInterval: s.opts.PollInterval,
		Logger:       s.opts.Logger,
	})
	ctx, cancel := context.WithCancel(s.ctx)
	r := &runningRepo{repo: repo, cancel: cancel, done: make(chan struct{})}
	s.repos[slug] = r

	if s.bus != nil {
		repo.Updated().Subscribe(func(content.Snapshot) {
			s.bus.Publish(Event{Resource: "content", Action: "refreshed", ID: slug})
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		repo.Run(ctx)
	}()
	s.logger.Info("content repository started", "chronomap", slug)
	return repo, nil
}

// Snapshot returns the current content of slug, waiting for the first
// snapshot until ctx ends.
func (s *ContentService) Snapshot(ctx context.Context, slug string) (content.Snapshot, error) {
	repo, err := s.Repository(slug)
	if err != nil {
		return content.Snapshot{}, err
	}

	ready := make(chan struct{})
	var once sync.Once
	cancel := repo.Ready().Subscribe(func() { once.Do(func() { close(ready) }) })
	defer cancel()

	select {
	case <-ready:
		return repo.Current()
	case <-ctx.Done():
		if err := repo.LastError(); err != nil {
			return content.Snapshot{}, fmt.Errorf("%w: %w", content.ErrNotReady, err)
		}
		return content.Snapshot{}, content.ErrNotReady
	}
}

// Refresh fetches slug now.
func (s *ContentService) Refresh(ctx context.Context, slug string) (content.Snapshot, error) {
	repo, err := s.Repository(slug)
	if err != nil {
		return content.Snapshot{}, err
	}
	if err := repo.Refresh(ctx); err != nil {
		return content.Snapshot{}, fmt.Errorf("refresh %q: %w", slug, err)
	}
	return repo.Current()
}

func (s *ContentService) stop(slug string) {
	s.mu.Lock()
	r, ok := s.repos[slug]
	delete(s.repos, slug)
	s.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
	s.logger.Info("content repository stopped", "chronomap", slug)
}

// Close stops every repository and waits for them.
func (s *ContentService) Close() {
	s.mu.Lock()
	s.cancel()
	s.repos = make(map[string]*runningRepo)
	s.mu.Unlock()
	s.wg.Wait()
}
