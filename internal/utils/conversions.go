package utils

import "strings"

// ScopeList normalises a scope claim, which may be a space separated string
// or a JSON array, into unique non-empty scopes in their original order.
func ScopeList(claim any) []string {
	var raw []string
	switch v := claim.(type) {
	case string:
		raw = strings.Fields(v)
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, strings.Fields(s)...)
			}
		}
	}

	scopes := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		scopes = append(scopes, s)
	}
	return scopes
}
