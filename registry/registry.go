package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fableloom/chronicler/types"
)

// Source 描述一个已注册的溯源来源.
type Source struct {
	ID      string  `json:"id" yaml:"id"`
	Version string  `json:"version" yaml:"version"`
	Title   string  `json:"title" yaml:"title"`
	Trust   float64 `json:"trust" yaml:"trust"`
}

// Tag returns the source's provenance tag in source_id@version form.
func (s Source) Tag() string {
	return types.MakeProvenanceTag(s.ID, s.Version)
}

// Validate checks structural integrity of a source entry.
func (s Source) Validate() error {
	if s.ID == "" || s.Version == "" {
		return types.NewError(types.ErrValidation, "source missing id or version")
	}
	if s.Trust < 0 || s.Trust > 1 {
		return types.NewError(types.ErrValidation,
			fmt.Sprintf("source %s trust %.3f out of [0,1]", s.Tag(), s.Trust))
	}
	return nil
}

// Registry resolves provenance tags to registered sources.
type Registry interface {
	// Resolve looks up a source by id and version.
	Resolve(sourceID, version string) (Source, bool)
}

// internalSource is the synthetic source for content that originates
// inside the pipeline (memory recalls, masked world state). It is always
// registered so internal provenance resolves against every registry.
var internalSource = Source{
	ID:      types.InternalSourceID,
	Version: types.InternalSourceVersion,
	Title:   "pipeline internal",
	Trust:   1.0,
}

// StaticRegistry is an in-memory Registry seeded at startup from the
// scenario's source list. Safe for concurrent use.
type StaticRegistry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewStatic builds a registry from the given sources. The synthetic
// internal source is always present. Duplicate or invalid entries are
// configuration errors.
func NewStatic(sources ...Source) (*StaticRegistry, error) {
	r := &StaticRegistry{
		sources: map[string]Source{internalSource.Tag(): internalSource},
	}
	for _, src := range sources {
		if err := r.Register(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a source. Registering the same tag twice is rejected:
// a tag must mean one source for the lifetime of the registry.
func (r *StaticRegistry) Register(src Source) error {
	if err := src.Validate(); err != nil {
		return types.NewError(types.ErrInvalidConfiguration, "registering source").WithCause(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tag := src.Tag()
	if _, exists := r.sources[tag]; exists && tag != internalSource.Tag() {
		return types.NewError(types.ErrInvalidConfiguration,
			fmt.Sprintf("duplicate source %s", tag))
	}
	r.sources[tag] = src
	return nil
}

// Resolve implements Registry.
func (r *StaticRegistry) Resolve(sourceID, version string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[types.MakeProvenanceTag(sourceID, version)]
	return src, ok
}

// Len returns the number of registered sources, the internal source
// included.
func (r *StaticRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Sources returns all registered sources ordered by tag.
func (r *StaticRegistry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag() < out[j].Tag() })
	return out
}

var _ Registry = (*StaticRegistry)(nil)

// Check verifies that a snippet's provenance resolves. Unresolved
// provenance yields a PROVENANCE_UNRESOLVED error; callers drop the
// snippet and log, they never surface it to a turn.
func Check(r Registry, s types.KnowledgeSnippet) error {
	if _, ok := r.Resolve(s.SourceID, s.SourceVersion); !ok {
		return types.NewError(types.ErrProvenanceUnresolved,
			fmt.Sprintf("snippet source %s not registered", s.ProvenanceTag()))
	}
	return nil
}
