package job

import (
	"sort"
	"sync"

	"github.com/caffeineduck/tib/language"
	"github.com/caffeineduck/tib/language/brainfuck"
	"github.com/caffeineduck/tib/language/deadfish"
	"github.com/caffeineduck/tib/language/debuglang"
	"github.com/caffeineduck/tib/language/s10k"
	"github.com/caffeineduck/tib/language/slashes"
)

// Registry maps language names to interpreters.
type Registry struct {
	mu    sync.RWMutex
	langs map[string]language.Language
}

func NewRegistry() *Registry {
	return &Registry{langs: make(map[string]language.Language)}
}

// DefaultRegistry returns a registry holding every built-in language.
// ExampleLang is added only when debug is true.
func DefaultRegistry(debug bool) *Registry {
	r := NewRegistry()
	r.Register(brainfuck.New())
	r.Register(deadfish.New())
	r.Register(slashes.New())
	r.Register(s10k.New())
	if debug {
		r.Register(debuglang.New())
	}
	return r
}

// Register adds lang under its Name, replacing any previous entry.
func (r *Registry) Register(lang language.Language) {
	r.mu.Lock()
	r.langs[lang.Name()] = lang
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (language.Language, bool) {
	r.mu.RLock()
	lang, ok := r.langs[name]
	r.mu.RUnlock()
	return lang, ok
}

// List returns the registered names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered languages ordered by name.
func (r *Registry) All() []language.Language {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]language.Language, 0, len(names))
	for _, name := range names {
		langs = append(langs, r.langs[name])
	}
	return langs
}
