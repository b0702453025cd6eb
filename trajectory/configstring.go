package trajectory

import (
	"strings"
)

// ParseConfiguration decodes a configuration string of key='value' pairs
// separated by commas. Quotes around keys and values are stripped; pairs
// without '=' are ignored. Fields given separately (one pair per CSV field)
// may be joined with ", " before calling.
func ParseConfiguration(s string) map[string]string {
	config := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(unquote(k))
		if k == "" {
			continue
		}
		config[k] = unquote(strings.TrimSpace(v))
	}
	return config
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 1 && (s[0] == '\'' || s[0] == '"') {
		s = s[1:]
	}
	for len(s) >= 1 && (s[len(s)-1] == '\'' || s[len(s)-1] == '"') {
		s = s[:len(s)-1]
	}
	return s
}
