package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateMediaURL rejects stream URLs whose scheme is anything other than
// http or https. The signature engine fetches byte ranges from these URLs,
// so local schemes (file:, data:, ...) must never reach it.
func ValidateMediaURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	return nil
}

// EncodeURLWithSpaces re-encodes a URL that may contain raw spaces. Stream
// hosts occasionally hand out URLs with unencoded spaces in the path, which
// must be %20 encoded before an HTTP fetch.
func EncodeURLWithSpaces(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	encoded := parsed.Scheme + "://" + parsed.Host + parsed.EscapedPath()
	if parsed.RawQuery != "" {
		encoded += "?" + strings.ReplaceAll(parsed.RawQuery, " ", "%20")
	}
	return encoded, nil
}
