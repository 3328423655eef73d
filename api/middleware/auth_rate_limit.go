package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// maxThrottledBody bounds how much of an auth body is buffered to find the email.
const maxThrottledBody = 64 << 10

// RateLimiter counts a hit against scope's fixed window.
type RateLimiter interface {
	Hit(ctx context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error)
}

// AuthRateLimitPolicy throttles one auth endpoint by client IP and by the
// email in the request body.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "auth"
	}
	return AuthRateLimitPolicy{
		name:       name,
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

func (p AuthRateLimitPolicy) scope(kind, subject string) string {
	return fmt.Sprintf("auth:%s:%s:%s", p.name, kind, subject)
}

// check is one counter the request must stay under.
type check struct {
	kind    string
	subject string
	limit   int
}

// AuthRateLimit rejects requests with 429 once either counter passes its limit.
// A nil limiter disables throttling.
func AuthRateLimit(policy AuthRateLimitPolicy, limiter RateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			checks := make([]check, 0, 2)

			if ip := clientIP(r); policy.ipLimit > 0 && ip != "" {
				checks = append(checks, check{kind: "ip", subject: ip, limit: policy.ipLimit})
			}
			if policy.emailLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxThrottledBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				if email := normalizeEmail(extractEmail(body)); email != "" {
					checks = append(checks, check{kind: "email", subject: hashValue(email), limit: policy.emailLimit})
				}
			}

			for _, c := range checks {
				win, err := limiter.Hit(ctx, policy.scope(c.kind, c.subject), int64(c.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !win.Allowed {
					respondRateLimited(ctx, logg, w, policy, c, win)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, c check, win pkgredis.Window) {
	retryAfter := retryAfterSeconds(win.ResetIn, policy.window)
	if logg != nil {
		fields := map[string]any{
			"scope":          c.kind,
			"policy":         policy.name,
			"attempts":       win.Count,
			"limit":          c.limit,
			"window_seconds": int(policy.window.Seconds()),
			"retry_after":    retryAfter,
		}
		// ip is logged as-is, emails only as their hash
		if c.kind == "ip" {
			fields["ip"] = c.subject
		} else {
			fields["email_hash"] = c.subject
		}
		logg.Warn(logg.WithFields(ctx, fields), "auth.rate_limit.blocked")
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later").
		WithDetails(map[string]any{"retry_after_seconds": retryAfter}))
}

// retryAfterSeconds rounds the remaining window up to whole seconds. An unknown
// remainder falls back to the full window.
func retryAfterSeconds(resetIn, window time.Duration) int {
	if resetIn <= 0 || resetIn > window {
		resetIn = window
	}
	return int((resetIn + time.Second - 1) / time.Second)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.Email
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
