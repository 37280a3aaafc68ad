package utils

import (
	"net/url"
	"strings"

	"newswire/internal/utils/hash"
)

// CanonicalURL lowercases scheme and host, drops the fragment, tracking
// parameters and a trailing slash. Unparseable input is returned trimmed.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	query := u.Query()
	for key := range query {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || lower == "guccounter" || lower == "fbclid" {
			query.Del(key)
		}
	}

	// Encode sorts by key.
	u.RawQuery = query.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	return u.String()
}

// DedupKey identifies a record across fetches. The canonical URL is used
// when present, otherwise the provider scoped external id.
func DedupKey(provider, rawURL, externalID string) string {
	if canonical := CanonicalURL(rawURL); canonical != "" {
		return hash.NewHash([]byte(canonical)).ComputeHash()
	}
	return hash.Of(provider, externalID)
}
