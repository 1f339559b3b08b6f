package gallery

import "strings"

// NormalizePath returns the canonical, slash-prefixed form of a gallery path.
// Backslashes become slashes and repeated slashes collapse. An empty input
// stays empty.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// LegacyPath is the variant without the leading slash that older rows use
func LegacyPath(canonical string) string {
	return strings.TrimPrefix(canonical, "/")
}

// lookupPaths returns the canonical and legacy variants of every path
func lookupPaths(canonical []string) []string {
	out := make([]string, 0, len(canonical)*2)
	seen := make(map[string]struct{}, len(canonical)*2)
	for _, p := range canonical {
		for _, v := range []string{p, LegacyPath(p)} {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
