package headers

import (
	"net/http"
	"strings"
)

// ParseHeaders converts "Key: Value" strings into a map. Malformed entries
// are skipped.
func ParseHeaders(h []string) map[string]string {
	m := make(map[string]string)
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) == 2 && strings.TrimSpace(parts[0]) != "" {
			m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return m
}

// Apply sets every header of m on req, replacing existing values.
func Apply(req *http.Request, m map[string]string) {
	for k, v := range m {
		req.Header.Set(k, v)
	}
}
