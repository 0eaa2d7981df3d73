package remote

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

// retryAfter returns how long a 429 response asks us to wait.
//
// Sources, in order:
//   - Retry-After as delay-seconds or an HTTP date
//   - RateLimit (draft-ietf-httpapi-ratelimit-headers), an RFC 8941 dictionary
//     whose "t" (newer drafts) or "reset" member holds seconds until reset
//   - RateLimit-Reset as plain seconds
//
// ok is false when none is present or parseable.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	if v := strings.TrimSpace(h.Get("Retry-After")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d, true
			}
			return 0, true
		}
	}

	if v := h.Get("RateLimit"); v != "" {
		if d, ok := parseRateLimitDict(v); ok {
			return d, true
		}
	}

	if v := strings.TrimSpace(h.Get("RateLimit-Reset")); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}

func parseRateLimitDict(header string) (time.Duration, bool) {
	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return 0, false
	}
	for _, name := range []string{"t", "reset"} {
		member, ok := dict.Get(name)
		if !ok {
			continue
		}
		item, ok := member.(httpsfv.Item)
		if !ok {
			continue
		}
		if secs, ok := item.Value.(int64); ok && secs >= 0 {
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
