package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/veriflow-labs/veriflow-go/internal/adapter"
)

// ErrNoAdapter is returned when no adapter can serve a project.
var ErrNoAdapter = errors.New("no suitable adapter")

// Registry maps detected languages to adapter implementations. A default
// adapter, when set, serves any language without a dedicated entry.
type Registry struct {
	mu         sync.RWMutex
	byLanguage map[string]adapter.Adapter
	fallback   adapter.Adapter
}

func NewRegistry() *Registry {
	return &Registry{byLanguage: make(map[string]adapter.Adapter)}
}

func (r *Registry) Register(language string, a adapter.Adapter) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" || a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[language] = a
}

func (r *Registry) SetDefault(a adapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = a
}

// Resolve returns the adapter for a language, falling back to the
// default entry when no dedicated one is registered.
func (r *Registry) Resolve(language string) (adapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byLanguage[strings.ToLower(strings.TrimSpace(language))]; ok {
		return a, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, ErrNoAdapter
}

// ForRepo detects the repository's language from its build manifests and
// resolves the matching adapter.
func (r *Registry) ForRepo(repoPath string) (adapter.Adapter, error) {
	return r.Resolve(DetectLanguage(repoPath))
}

// DetectLanguage inspects well-known build manifests at the repository
// root. Unknown trees return an empty language, which resolves to the
// default adapter when one is set.
func DetectLanguage(repoPath string) string {
	repoPath = strings.TrimSpace(repoPath)
	if repoPath == "" {
		return ""
	}
	manifests := []struct {
		file     string
		language string
	}{
		{"go.mod", "go"},
		{"package.json", "javascript"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
		{"Cargo.toml", "rust"},
		{"pom.xml", "java"},
	}
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(repoPath, m.file)); err == nil {
			return m.language
		}
	}
	return ""
}
