package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/chronomaps/internal/chronomap"
	"github.com/joeblew999/chronomaps/internal/content"
	"github.com/joeblew999/chronomaps/internal/loop"
	"github.com/joeblew999/chronomaps/internal/telemetry"
)

// ViewOptionsFunc returns the options of a new view.
type ViewOptionsFunc func(slug string, desktop bool, logger *slog.Logger) chronomap.Options

// ViewRequest opens a view.
type ViewRequest struct {
	Slug     string
	Fragment string
	Width    float64
	Desktop  bool
}

type session struct {
	id      string
	slug    string
	view    *chronomap.View
	loop    *loop.Loop
	unwatch func()
	created time.Time

	// attached and idleSince are guarded by ViewService.mu.
	attached  int
	idleSince time.Time
}

// ViewService runs the live browser sessions, each on its own loop.
type ViewService struct {
	maps    *ChronomapService
	content *ContentService
	bus     *EventBus
	options ViewOptionsFunc
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
	stop     chan struct{}
	wg       sync.WaitGroup
}

var (
	viewsOpened = telemetry.Counter("chronomaps.views.opened", "Views opened")
	viewsClosed = telemetry.Counter("chronomaps.views.closed", "Views closed")
)

// NewViewService creates the service. options may be nil.
func NewViewService(maps *ChronomapService, contents *ContentService, bus *EventBus, options ViewOptionsFunc, logger *slog.Logger) *ViewService {
	if logger == nil {
		logger = slog.Default()
	}
	if options == nil {
		options = func(slug string, desktop bool, logger *slog.Logger) chronomap.Options {
			return chronomap.Options{Slug: slug, Desktop: desktop, Logger: logger}
		}
	}
	s := &ViewService{
		maps:     maps,
		content:  contents,
		bus:      bus,
		options:  options,
		logger:   logger.With("component", "view-service"),
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
	if bus != nil {
		s.watch(bus.Subscribe())
	}
	return s
}

// watch closes the views of deleted chronomaps.
func (s *ViewService) watch(events chan Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.bus.Unsubscribe(events)
		for {
			select {
			case <-s.stop:
				return
			case e := <-events:
				if e.Resource == "chronomaps" && e.Action == "deleted" {
					s.closeSlug(e.ID)
				}
			}
		}
	}()
}

// Open builds a view of req.Slug once its content is available and returns
// its id. The view starts when the browser attaches its stream.
func (s *ViewService) Open(ctx context.Context, req ViewRequest) (string, *chronomap.View, error) {
	m, ok := s.maps.Get(req.Slug)
	if !ok {
		return "", nil, fmt.Errorf("chronomap %q: %w", req.Slug, ErrNotFound)
	}
	snap, err := s.content.Snapshot(ctx, req.Slug)
	if err != nil {
		return "", nil, err
	}
	repo, err := s.content.Repository(req.Slug)
	if err != nil {
		return "", nil, err
	}

	id := uuid.NewString()
	logger := s.logger.With("view", id)
	opts := s.options(req.Slug, req.Desktop, logger)
	if !m.MinDate.IsZero() && !m.MaxDate.IsZero() {
		opts.Timeline.MinDate, opts.Timeline.MaxDate = m.MinDate, m.MaxDate
	}
	if req.Width > 0 {
		opts.Timeline.Width = req.Width
	}

	lp := loop.New(logger)
	view := chronomap.New(lp, snap, opts)
	go lp.Run(context.Background())

	var seenMu sync.Mutex
	seen := snap.FetchedAt
	unwatch := repo.Updated().Subscribe(func(next content.Snapshot) {
		seenMu.Lock()
		fresh := !next.FetchedAt.Equal(seen)
		seen = next.FetchedAt
		seenMu.Unlock()
		if fresh {
			view.Update(next)
		}
	})

	s.mu.Lock()
	s.sessions[id] = &session{
		id:        id,
		slug:      req.Slug,
		view:      view,
		loop:      lp,
		unwatch:   unwatch,
		created:   time.Now(),
		idleSince: time.Now(),
	}
	s.mu.Unlock()

	telemetry.Inc(viewsOpened)
	logger.Info("view opened", "chronomap", req.Slug, "desktop", req.Desktop)
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "views", Action: "created", ID: id})
	}
	return id, view, nil
}

// Get returns a live view.
func (s *ViewService) Get(id string) (*chronomap.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.view, true
}

// Attach marks a browser stream as connected to view id and returns a
// function that detaches it.
func (s *ViewService) Attach(id string) (*chronomap.View, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("view %q: %w", id, ErrNotFound)
	}
	sess.attached++
	var once sync.Once
	detach := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sess.attached--
			if sess.attached == 0 {
				sess.idleSince = time.Now()
			}
		})
	}
	return sess.view, detach, nil
}

// Reap closes views that have had no stream attached for longer than ttl
// and returns how many it closed.
func (s *ViewService) Reap(ttl time.Duration) int {
	now := time.Now()
	s.mu.Lock()
	var idle []*session
	for id, sess := range s.sessions {
		if sess.attached == 0 && now.Sub(sess.idleSince) > ttl {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range idle {
		s.shutdown(sess)
	}
	return len(idle)
}

// RunReaper calls Reap every ttl/2 until ctx is done.
func (s *ViewService) RunReaper(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.Reap(ttl); n > 0 {
				s.logger.Debug("reaped idle views", "count", n)
			}
		}
	}
}

// Len returns the number of live views.
func (s *ViewService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops a view and its loop.
func (s *ViewService) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("view %q: %w", id, ErrNotFound)
	}
	s.shutdown(sess)
	return nil
}

func (s *ViewService) closeSlug(slug string) {
	s.mu.Lock()
	var doomed []*session
	for id, sess := range s.sessions {
		if sess.slug == slug {
			doomed = append(doomed, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range doomed {
		s.shutdown(sess)
	}
}

func (s *ViewService) shutdown(sess *session) {
	sess.unwatch()
	sess.view.Close()
	select {
	case <-sess.view.Done():
	case <-time.After(2 * time.Second):
		s.logger.Warn("view did not stop in time", "view", sess.id)
	}
	sess.loop.Close()

	telemetry.Inc(viewsClosed)
	s.logger.Info("view closed", "view", sess.id, "age", time.Since(sess.created).Round(time.Second))
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "views", Action: "deleted", ID: sess.id})
	}
}

// CloseAll stops every view.
func (s *ViewService) CloseAll() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	s.mu.Lock()
	all := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	for _, sess := range all {
		s.shutdown(sess)
	}
	s.wg.Wait()
}
