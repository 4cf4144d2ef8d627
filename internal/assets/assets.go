// Package assets handles scene lookup, loading and caching.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/midgard-ogex/internal/texture"
	"github.com/Faultbox/midgard-ogex/pkg/opengex"
)

// ErrModelNotFound is returned when no search path holds the requested model.
var ErrModelNotFound = errors.New("model not found")

// Manager resolves model names against search paths and caches loaded
// scenes. It is safe for concurrent use.
type Manager struct {
	searchPaths  []string
	textureRoots []string
	opts         []opengex.Option
	cache        *Cache
	log          *zap.Logger
	mu           sync.RWMutex
}

// NewManager creates a new asset manager. opts are passed to every
// opengex load; cache may be nil to disable caching.
func NewManager(log *zap.Logger, cache *Cache, opts ...opengex.Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		opts:  append([]opengex.Option{opengex.WithLogger(log)}, opts...),
		cache: cache,
		log:   log,
	}
}

// AddSearchPath adds a directory searched for models. Paths are searched
// in the order they were added.
func (m *Manager) AddSearchPath(dir string) {
	m.mu.Lock()
	m.searchPaths = append(m.searchPaths, dir)
	m.mu.Unlock()
}

// AddTextureRoot adds a directory searched for texture images, after the
// model's own directory.
func (m *Manager) AddTextureRoot(dir string) {
	m.mu.Lock()
	m.textureRoots = append(m.textureRoots, dir)
	m.mu.Unlock()
}

// Resolve returns the file path for a model name. A name without an
// extension gets ".ogex". Existing paths are used as given.
func (m *Manager) Resolve(name string) (string, error) {
	if filepath.Ext(name) == "" {
		name += ".ogex"
	}
	if fileExists(name) {
		return filepath.Abs(name)
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, dir := range m.searchPaths {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrModelNotFound, name)
}

// Load resolves and loads a model. Load problems inside the file are
// reported as scene diagnostics; an error means the model was not found.
func (m *Manager) Load(name string) (*opengex.Scene, string, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return nil, "", err
	}

	if m.cache != nil {
		if scene, ok := m.cache.Get(path); ok {
			m.log.Debug("scene cache hit", zap.String("path", path))
			return scene, path, nil
		}
	}

	scene := opengex.Open(path, m.opts...)
	if m.cache != nil {
		m.cache.Set(path, scene)
	}
	return scene, path, nil
}

// ResolveTexture finds the image for a texture path referenced by the
// model at modelPath. The model's directory is searched first.
func (m *Manager) ResolveTexture(modelPath, ref string) (string, bool) {
	m.mu.RLock()
	roots := make([]string, 0, len(m.textureRoots)+1)
	roots = append(roots, filepath.Dir(modelPath))
	roots = append(roots, m.textureRoots...)
	m.mu.RUnlock()

	return texture.Resolve(ref, roots)
}

// Close drops all cached scenes.
func (m *Manager) Close() {
	if m.cache != nil {
		m.cache.Clear()
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Cache is an in-memory cache of loaded scenes keyed by absolute path.
type Cache struct {
	scenes map[string]*opengex.Scene
	mu     sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		scenes: make(map[string]*opengex.Scene),
	}
}

// Get retrieves a scene from cache.
func (c *Cache) Get(key string) (*opengex.Scene, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	scene, ok := c.scenes[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return scene, ok
}

// Set stores a scene in cache.
func (c *Cache) Set(key string, scene *opengex.Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenes[key] = scene
}

// Len returns the number of cached scenes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scenes)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenes = make(map[string]*opengex.Scene)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
