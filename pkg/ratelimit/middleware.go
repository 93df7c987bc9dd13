package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
)

// Config holds the limits applied to the public credential endpoints.
type Config struct {
	Enabled bool

	// Per client address.
	PerIPCapacity   int
	PerIPRefillRate float64

	// Per submitted login identifier, so a distributed guesser cannot spread
	// attempts for one account over many addresses.
	PerIdentifierCapacity   int
	PerIdentifierRefillRate float64

	// BucketTTL is how long an idle bucket is kept in memory.
	BucketTTL time.Duration

	// RetryAfter is advertised to throttled clients.
	RetryAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		PerIPCapacity:           30,
		PerIPRefillRate:         30.0 / 60.0,
		PerIdentifierCapacity:   10,
		PerIdentifierRefillRate: 10.0 / 60.0,
		BucketTTL:               time.Hour,
		RetryAfter:              time.Minute,
	}
}

type Middleware struct {
	config       Config
	ipLimiter    *Limiter
	identLimiter *Limiter
}

func NewMiddleware(config Config, opts ...Option) *Middleware {
	return &Middleware{
		config:       config,
		ipLimiter:    NewLimiter(config.PerIPCapacity, config.PerIPRefillRate, opts...),
		identLimiter: NewLimiter(config.PerIdentifierCapacity, config.PerIdentifierRefillRate, opts...),
	}
}

// Start prunes idle buckets in the background until ctx is done.
func (m *Middleware) Start(ctx context.Context) {
	go m.ipLimiter.RunJanitor(ctx, m.config.BucketTTL)
	go m.identLimiter.RunJanitor(ctx, m.config.BucketTTL)
}

// Handler throttles requests by client address and, when the JSON body
// carries one, by login identifier.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)
		if ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip")
			return
		}
		if identifier := peekIdentifier(r); identifier != "" && !m.identLimiter.Allow(identifier) {
			m.rateLimitExceeded(w, r, "identifier")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded", "type", limitType, "ip", ClientIP(r), "path", r.URL.Path)

	retryAfter := int(m.config.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, errorResponse{
		Error:   "rate_limit_exceeded",
		Message: "Too many requests. Please try again later.",
		Type:    limitType,
	})
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

const maxPeekBytes = 64 << 10

// peekIdentifier reads the "identifier" field of a JSON body and restores the
// body for the next handler.
func peekIdentifier(r *http.Request) string {
	if r.Body == nil || !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var peek struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(peek.Identifier))
}
