package obs

import "strings"

// CanonicalPath collapses per-entity URL segments so metric label
// cardinality stays bounded. Unknown paths pass through unchanged.
func CanonicalPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "users" && parts[2] != "" {
		switch len(parts) {
		case 3:
			return "/v1/users/:id"
		case 4:
			if parts[3] == "roles" || parts[3] == "sessions" {
				return "/v1/users/:id/" + parts[3]
			}
		}
	}
	return raw
}
