// Package session tracks which project a connection is working in and owns
// the per-project engine lifecycle. Graph stores are opened lazily on first
// use and cached until the project is switched away or the manager closes.
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/sessionmind/memory-mcp/internal/embedding"
	"github.com/sessionmind/memory-mcp/internal/engine"
	"github.com/sessionmind/memory-mcp/internal/models"
	"github.com/sessionmind/memory-mcp/internal/storage"
)

// Manager owns the meta store, the shared embedding service, and the cache
// of open project engines. All methods are safe for concurrent use.
type Manager struct {
	meta      *storage.MetaStore
	embedder  *embedding.Service
	threshold float64

	mu      sync.Mutex
	current string // current project name, "" when none selected
	engines map[string]*openEngine
}

type openEngine struct {
	store  *storage.GraphStore
	engine *engine.Engine
}

// NewManager builds a session manager over the meta store.
func NewManager(meta *storage.MetaStore, embedder *embedding.Service, threshold float64) *Manager {
	return &Manager{
		meta:      meta,
		embedder:  embedder,
		threshold: threshold,
		engines:   make(map[string]*openEngine),
	}
}

// Meta returns the underlying meta store.
func (m *Manager) Meta() *storage.MetaStore {
	return m.meta
}

// Use switches the session to a project, creating it if requested. The
// project must be active.
func (m *Manager) Use(name string, createIfMissing bool) (*models.Project, error) {
	proj, err := m.meta.GetProjectByName(name)
	if errors.Is(err, storage.ErrProjectNotFound) && createIfMissing {
		proj, err = m.meta.CreateProject(name, "")
		if err != nil {
			return nil, fmt.Errorf("create project %q: %w", name, err)
		}
		log.Printf("[session] created project %q", name)
	} else if err != nil {
		return nil, fmt.Errorf("project %q: %w", name, err)
	}
	if proj.Status != "active" {
		return nil, fmt.Errorf("project %q is archived; restore it first", name)
	}

	m.mu.Lock()
	m.current = name
	m.mu.Unlock()
	return proj, nil
}

// Current returns the active project name, or empty when none is selected.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Engine returns the engine for the current project, opening its graph
// database if needed.
func (m *Manager) Engine() (*engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == "" {
		return nil, fmt.Errorf("no project selected; call use_project first")
	}
	return m.engineLocked(m.current)
}

// EngineFor returns the engine for a named project without switching the
// session to it.
func (m *Manager) EngineFor(name string) (*engine.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineLocked(name)
}

func (m *Manager) engineLocked(name string) (*engine.Engine, error) {
	if open, ok := m.engines[name]; ok {
		return open.engine, nil
	}

	proj, err := m.meta.GetProjectByName(name)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", name, err)
	}
	if proj.Status != "active" {
		return nil, fmt.Errorf("project %q is archived", name)
	}

	store, err := storage.OpenGraph(m.meta.ProjectDBPath(proj))
	if err != nil {
		return nil, fmt.Errorf("open graph for %q: %w", name, err)
	}

	open := &openEngine{
		store:  store,
		engine: engine.New(store, m.embedder, m.threshold),
	}
	m.engines[name] = open
	return open.engine, nil
}

// Release closes a project's graph store if it is open. Called before
// archive or delete so the database file can be moved or removed.
func (m *Manager) Release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if open, ok := m.engines[name]; ok {
		if err := open.store.Close(); err != nil {
			log.Printf("[session] close graph for %q: %v", name, err)
		}
		delete(m.engines, name)
	}
	if m.current == name {
		m.current = ""
	}
}

// Close releases every open engine and the meta store.
func (m *Manager) Close() error {
	m.mu.Lock()
	for name, open := range m.engines {
		if err := open.store.Close(); err != nil {
			log.Printf("[session] close graph for %q: %v", name, err)
		}
		delete(m.engines, name)
	}
	m.mu.Unlock()
	return m.meta.Close()
}
