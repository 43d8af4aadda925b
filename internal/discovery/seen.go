package discovery

import "sort"

// SeenRegistry remembers which entity ids were already published in this run.
//
// It is not safe for concurrent use; callers serialize access. Nothing is
// persisted, so a restart republishes everything once.
type SeenRegistry struct {
	seen map[string]struct{}
}

// NewSeenRegistry returns an empty registry.
func NewSeenRegistry() *SeenRegistry {
	return &SeenRegistry{seen: make(map[string]struct{})}
}

// ShouldPublish reports whether id is new, marking it seen when it is.
func (r *SeenRegistry) ShouldPublish(id string) bool {
	if _, ok := r.seen[id]; ok {
		return false
	}
	r.seen[id] = struct{}{}
	return true
}

// Mark records id as seen without asking.
func (r *SeenRegistry) Mark(id string) {
	r.seen[id] = struct{}{}
}

// Forget removes id so a later ShouldPublish succeeds again. Used when a
// publish fails and the entity should be retried on the next snapshot.
func (r *SeenRegistry) Forget(id string) {
	delete(r.seen, id)
}

// Len returns the number of ids seen.
func (r *SeenRegistry) Len() int {
	return len(r.seen)
}

// IDs returns the seen ids, sorted.
func (r *SeenRegistry) IDs() []string {
	out := make([]string, 0, len(r.seen))
	for id := range r.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
