// Package loader fetches reference datasets (locations, programs, periods,
// prefixes, institutions) through an ordered list of sources, shares
// concurrent loads of the same resource, and caches results with a TTL.
//
// One Loader is meant to be shared by every form in the process: its cache
// and in-flight calls are global to whoever holds it.
package loader

import "fmt"

// Resource identifies a reference dataset.
type Resource string

const (
	Locations    Resource = "locations"
	Programs     Resource = "programs"
	Periods      Resource = "periods"
	Prefixes     Resource = "prefixes"
	Institutions Resource = "institutions"
)

// Resources lists every known resource.
var Resources = []Resource{Locations, Programs, Periods, Prefixes, Institutions}

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource %q", s)
}

// DefaultFallbacks returns the built-in fallback URLs of r in priority
// order. Only the compiled-in copy ships by default; deployments add their
// own mirrors through Sources.
func DefaultFallbacks(r Resource) []string {
	return []string{BundledURL(r)}
}

// Sources decides which URLs are tried for a resource.
type Sources struct {
	// User holds the caller-supplied URL per resource, tried first.
	User map[Resource]string
	// Fallbacks replaces the built-in list for a resource when set.
	Fallbacks map[Resource][]string
}

// URLs returns the ordered, de-duplicated list of URLs for r.
func (s Sources) URLs(r Resource) []string {
	var candidates []string
	if u := s.User[r]; u != "" {
		candidates = append(candidates, u)
	}
	if fb, ok := s.Fallbacks[r]; ok {
		candidates = append(candidates, fb...)
	} else {
		candidates = append(candidates, DefaultFallbacks(r)...)
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, u := range candidates {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
