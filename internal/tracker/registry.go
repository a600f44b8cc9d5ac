package tracker

import (
	"sort"
	"strings"

	"ptnotify/internal/cookiejar"
)

// Factory builds an adapter instance bound to one cookie file.
type Factory func(jar *cookiejar.Jar) (Adapter, error)

// Registry is the static kind→factory table. The set of supported sites is
// fixed at startup; there is no dynamic discovery.
type Registry struct {
	factories map[string]Factory // upper(kind) → factory
	names     map[string]string  // upper(kind) → registered spelling
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		names:     map[string]string{},
	}
}

// Register adds a factory under kind. Last registration wins, which only
// matters in tests.
func (r *Registry) Register(kind string, f Factory) {
	key := strings.ToUpper(kind)
	r.factories[key] = f
	r.names[key] = kind
}

// Lookup is case-insensitive: cookie directories are conventionally
// uppercase but operators get this wrong constantly.
func (r *Registry) Lookup(kind string) (Factory, bool) {
	f, ok := r.factories[strings.ToUpper(kind)]
	return f, ok
}

// Kinds returns the registered kinds in their registered spelling, sorted
// for stable discovery order.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
