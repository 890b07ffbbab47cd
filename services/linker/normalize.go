package linker

import (
	"net/url"
	"strings"
)

// volatileParams are query parameters that change between fetches of the
// same asset (signing tokens, expiry stamps) and must not take part in URL
// comparison.
var volatileParams = map[string]struct{}{
	"token":                {},
	"sig":                  {},
	"signature":            {},
	"expires":              {},
	"expiry":               {},
	"exp":                  {},
	"policy":               {},
	"key-pair-id":          {},
	"awsaccesskeyid":       {},
	"x-amz-algorithm":      {},
	"x-amz-credential":     {},
	"x-amz-date":           {},
	"x-amz-expires":        {},
	"x-amz-security-token": {},
	"x-amz-signature":      {},
	"x-amz-signedheaders":  {},
	"x-goog-algorithm":     {},
	"x-goog-credential":    {},
	"x-goog-date":          {},
	"x-goog-expires":       {},
	"x-goog-signature":     {},
	"x-goog-signedheaders": {},
}

// NormalizeURL canonicalizes a stream URL for comparison and dedup: volatile
// query parameters and trailing slashes are stripped, the remaining query is
// re-encoded in stable order. Malformed input is returned unchanged.
// Idempotent.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	q := u.Query()
	for key := range q {
		if _, volatile := volatileParams[strings.ToLower(key)]; volatile {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// hostOf returns the lower-cased hostname of a URL, or "" when unparsable.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
