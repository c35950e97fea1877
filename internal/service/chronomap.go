package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/chronomaps/internal/baserow"
	"github.com/joeblew999/chronomaps/internal/content"
)

// ChronomapService is the registry of chronomaps, kept in chronomaps.json
// under the data directory.
type ChronomapService struct {
	dataDir string
	bus     *EventBus
	maps    map[string]Chronomap
	mu      sync.RWMutex
}

// NewChronomapService loads the registry from dataDir. Mutations are
// published on bus when it is not nil.
func NewChronomapService(dataDir string, bus *EventBus) *ChronomapService {
	s := &ChronomapService{
		dataDir: dataDir,
		bus:     bus,
		maps:    make(map[string]Chronomap),
	}
	s.loadFromDisk()
	return s
}

// List returns all chronomaps ordered by slug.
func (s *ChronomapService) List() []Chronomap {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Chronomap, 0, len(s.maps))
	for _, m := range s.maps {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

// Get returns a chronomap by slug.
func (s *ChronomapService) Get(slug string) (Chronomap, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.maps[slug]
	return m, ok
}

// Create registers a chronomap. The slug is derived from the title when
// empty.
func (s *ChronomapService) Create(m Chronomap) (Chronomap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Slug == "" {
		m.Slug = generateSlug(m.Title)
	}
	if m.Slug == "" {
		return Chronomap{}, fmt.Errorf("chronomap %q: empty slug: %w", m.Title, ErrInvalid)
	}
	if _, exists := s.maps[m.Slug]; exists {
		return Chronomap{}, fmt.Errorf("chronomap %q: %w", m.Slug, ErrExists)
	}

	s.maps[m.Slug] = m
	if err := s.saveToDisk(); err != nil {
		delete(s.maps, m.Slug)
		return Chronomap{}, err
	}
	s.publish("created", m.Slug)
	return m, nil
}

// Update replaces a chronomap by slug.
func (s *ChronomapService) Update(slug string, m Chronomap) (Chronomap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.maps[slug]
	if !exists {
		return Chronomap{}, fmt.Errorf("chronomap %q: %w", slug, ErrNotFound)
	}

	m.Slug = slug
	if m.DatabaseToken == "" {
		m.DatabaseToken = prev.DatabaseToken
	}
	s.maps[slug] = m
	if err := s.saveToDisk(); err != nil {
		s.maps[slug] = prev
		return Chronomap{}, err
	}
	s.publish("updated", slug)
	return m, nil
}

// Delete removes a chronomap by slug.
func (s *ChronomapService) Delete(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.maps[slug]; !exists {
		return fmt.Errorf("chronomap %q: %w", slug, ErrNotFound)
	}

	delete(s.maps, slug)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	s.publish("deleted", slug)
	return nil
}

// Upsert creates or replaces m and reports whether it was new.
func (s *ChronomapService) Upsert(m Chronomap) (created bool, err error) {
	if _, ok := s.Get(m.Slug); ok {
		_, err = s.Update(m.Slug, m)
		return false, err
	}
	_, err = s.Create(m)
	return err == nil, err
}

// ExportYAML writes the registry as a YAML list.
func (s *ChronomapService) ExportYAML() ([]byte, error) {
	return yaml.Marshal(s.List())
}

// ImportYAML upserts every chronomap of a YAML list and returns how many
// were added.
func (s *ChronomapService) ImportYAML(data []byte) (int, error) {
	var maps []Chronomap
	if err := yaml.Unmarshal(data, &maps); err != nil {
		return 0, fmt.Errorf("decode chronomaps: %w", err)
	}
	added := 0
	for _, m := range maps {
		created, err := s.Upsert(m)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}

// ImportDirectory reads the admin database's Chronomaps table and upserts
// every entry. It returns how many were added.
func (s *ChronomapService) ImportDirectory(ctx context.Context, client *baserow.Client) (int, error) {
	rows, err := client.TableRows(ctx, "Chronomaps")
	if err != nil {
		return 0, fmt.Errorf("read directory: %w", err)
	}
	added := 0
	for _, e := range content.ParseDirectory(rows) {
		created, err := s.Upsert(Chronomap{
			Slug:          e.Slug,
			Title:         e.Title,
			DatabaseID:    e.DatabaseID,
			DatabaseToken: e.DatabaseToken,
			EditorName:    e.EditorName,
			EditorEmail:   e.EditorEmail,
			Pitch:         e.Pitch,
		})
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}

func (s *ChronomapService) publish(action, slug string) {
	if s.bus != nil {
		s.bus.Publish(Event{Resource: "chronomaps", Action: action, ID: slug})
	}
}

// configFile returns the path to the registry file.
func (s *ChronomapService) configFile() string {
	return filepath.Join(s.dataDir, "chronomaps.json")
}

// loadFromDisk loads the registry from disk.
func (s *ChronomapService) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var maps map[string]Chronomap
	if err := json.Unmarshal(data, &maps); err != nil {
		return
	}
	for slug, m := range maps {
		m.Slug = slug
		s.maps[slug] = m
	}
}

// saveToDisk persists the registry. The file holds database tokens.
func (s *ChronomapService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.maps, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0600)
}

// generateSlug creates a URL-safe slug from a title.
func generateSlug(title string) string {
	id := strings.ToLower(strings.TrimSpace(title))
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
