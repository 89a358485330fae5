package handlers

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

// delayReporter is implemented by limiters that know when a rejected key may retry.
type delayReporter interface {
	Check(key string) (time.Duration, bool)
}

// allowRequest limits by client address within scope.
func allowRequest(w http.ResponseWriter, r *http.Request, limiter RateLimiter, scope string) bool {
	return allowKey(w, limiter, scope+":"+clientIP(r))
}

// allowAccount limits per authenticated account rather than per address.
func allowAccount(w http.ResponseWriter, limiter RateLimiter, accountID, scope string) bool {
	return allowKey(w, limiter, scope+":account:"+accountID)
}

func allowKey(w http.ResponseWriter, limiter RateLimiter, key string) bool {
	if limiter == nil {
		return true
	}
	reporter, ok := limiter.(delayReporter)
	if !ok {
		return limiter.Allow(key)
	}
	wait, allowed := reporter.Check(key)
	if !allowed {
		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	return allowed
}

func respondRateLimited(ctx context.Context, w http.ResponseWriter, message string) {
	respondJSON(ctx, w, http.StatusTooManyRequests, errorResponse{Error: message, Code: "rate_limited"})
}

// clientIP prefers the first X-Forwarded-For hop, as the API runs behind a proxy.
func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
