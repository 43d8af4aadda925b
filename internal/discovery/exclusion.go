package discovery

import (
	"sort"
	"strings"
)

// ExclusionFilter decides whether an entity must not be published.
//
// Entries and candidates are compared after trimming and lower-casing. An
// entry can name the bare key ("return_temp") or the fully-qualified unique
// id ("aduro_h2_return_temp"); both forms match either kind of candidate.
type ExclusionFilter struct {
	prefix string
	set    map[string]struct{}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NewExclusionFilter builds a filter for deviceID from the configured entries.
// Blank entries are ignored.
func NewExclusionFilter(deviceID string, entries []string) *ExclusionFilter {
	f := &ExclusionFilter{
		prefix: normalize(deviceID) + "_",
		set:    make(map[string]struct{}, len(entries)),
	}
	for _, e := range entries {
		if n := normalize(e); n != "" {
			f.set[n] = struct{}{}
		}
	}
	return f
}

// IsExcluded reports whether key, in bare or prefixed form, is in the set.
func (f *ExclusionFilter) IsExcluded(key string) bool {
	if f == nil || len(f.set) == 0 {
		return false
	}
	k := normalize(key)
	if k == "" {
		return false
	}
	if _, ok := f.set[k]; ok {
		return true
	}
	if _, ok := f.set[f.prefix+k]; ok {
		return true
	}
	if bare, found := strings.CutPrefix(k, f.prefix); found {
		if _, ok := f.set[bare]; ok {
			return true
		}
	}
	return false
}

// Excludes applies the filter to an entity.
//
// Besides the id and source key, an inferred id such as "operating_return_temp"
// is excluded by the entry "return_temp" because its trailing key matches.
func (f *ExclusionFilter) Excludes(e Entity) bool {
	if f == nil || len(f.set) == 0 {
		return false
	}
	if f.IsExcluded(e.ID) || f.IsExcluded(e.SourceKey) {
		return true
	}
	id := normalize(e.ID)
	for entry := range f.set {
		bare := strings.TrimPrefix(entry, f.prefix)
		if strings.HasSuffix(id, "_"+bare) {
			return true
		}
	}
	return false
}

// Entries returns the normalized entries, sorted.
func (f *ExclusionFilter) Entries() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.set))
	for e := range f.set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
