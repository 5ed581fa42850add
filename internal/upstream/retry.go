package upstream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ParseRetryDelay extracts a retry hint from a 429 response. It checks
// the standard Retry-After header first (seconds or HTTP date), then a
// retry_after field in the already-read JSON body. Returns 0 when no
// hint is found.
func ParseRetryDelay(resp *http.Response, body []byte) time.Duration {
	if resp == nil {
		return 0
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if t, err := http.ParseTime(retryAfter); err == nil {
			if d := time.Until(t); d > 0 {
				return d
			}
			return 0
		}
	}

	var payload struct {
		RetryAfter json.Number `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0
	}
	if seconds, err := payload.RetryAfter.Float64(); err == nil && seconds > 0 {
		return time.Duration(seconds * float64(time.Second))
	}
	return 0
}
