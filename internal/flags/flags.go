// Package flags holds feature flags read from the "flags" config section.
// A Registry is read-only after construction; unknown or unset flags are off.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/tagsync/internal/log"
)

const (
	// FlagAdoptOrphans registers tags found on objects but missing from the registry
	// (with empty metadata) when the Controller loads.
	FlagAdoptOrphans = "adopt-orphans"

	// FlagDebugEndpoints exposes GET /debug/log, a live SSE stream of log lines.
	FlagDebugEndpoints = "debug-endpoints"
)

// Known maps every declared flag to a one-line description.
var Known = map[string]string{
	FlagAdoptOrphans:   "register orphan tags found on objects at load",
	FlagDebugEndpoints: "serve the live log stream at /debug/log",
}

// Registry holds feature flag state loaded from configuration.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a copy of the config map. Configured names that are
// not declared in Known are logged, since they are most likely typos.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: maps.Clone(flags)}
	if r.flags == nil {
		r.flags = make(map[string]bool)
	}
	for _, name := range r.Undeclared() {
		log.Warn(log.CatConfig, "unknown feature flag in config", "flag", name)
	}
	log.Debug(log.CatConfig, "feature flags initialized", "count", len(r.flags), "flags", r.flags)
	return r
}

// Enabled reports whether name is set to true. Nil-safe.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.flags[name]
}

// All returns a copy of every configured flag.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}

// Undeclared returns configured flag names missing from Known, sorted.
func (r *Registry) Undeclared() []string {
	if r == nil {
		return nil
	}
	var out []string
	for name := range r.flags {
		if _, ok := Known[name]; !ok {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
