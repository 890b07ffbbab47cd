package linker

import (
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ExtractProviderID pulls a stable per-asset identifier out of a hosting
// provider's URL path. UUID-shaped segments win; otherwise the first long
// alphanumeric segment is taken. Returns ok=false when neither is present.
func ExtractProviderID(rawURL string) (providerHost, providerID string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for _, segment := range segments {
		if _, err := uuid.Parse(segment); err == nil {
			return u.Hostname(), segment, true
		}
	}
	for _, segment := range segments {
		if len(segment) >= 16 && isAlphanumeric(segment) {
			return u.Hostname(), segment, true
		}
	}
	return "", "", false
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return s != ""
}
