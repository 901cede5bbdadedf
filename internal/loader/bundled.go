package loader

import (
	"embed"
	"fmt"
	"strings"
)

// BundledScheme prefixes the source URL of a dataset compiled into the
// binary. It is the last built-in fallback, so a deployment with no
// reachable mirror still serves a minimal catalog.
const BundledScheme = "bundled:"

//go:embed bundled/*.json
var bundled embed.FS

// BundledURL returns the source URL of the compiled-in copy of r.
func BundledURL(r Resource) string {
	return BundledScheme + string(r) + ".json"
}

func readBundled(u string) ([]byte, error) {
	name := strings.TrimPrefix(u, BundledScheme)
	data, err := bundled.ReadFile("bundled/" + name)
	if err != nil {
		return nil, fmt.Errorf("reading bundled dataset %s: %w", name, err)
	}
	return data, nil
}
