package api

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/listenupapp/listenup-align/internal/errors"
)

// ClientIP captures the caller's address for rate limiting. Embed it in an
// input struct; huma fills it through Resolve.
type ClientIP struct {
	ip string
}

// Resolve implements huma.Resolver.
func (c *ClientIP) Resolve(ctx huma.Context) []error {
	c.ip = getClientIP(ctx)
	return nil
}

// checkRateLimit consumes one token for key or returns a RATE_LIMITED error
// telling the caller when to retry.
func (s *Server) checkRateLimit(key, path string) error {
	limiter := s.services.Limiter
	if limiter == nil {
		return nil
	}
	wait := limiter.RetryAfter(key)
	if wait <= 0 {
		return nil
	}
	s.logger.Warn("Rate limit exceeded", "ip", key, "path", path)
	seconds := int((min(wait, time.Hour) + time.Second - 1) / time.Second)
	return domainerrors.RateLimited("too many alignment requests").
		WithDetails(map[string]string{"retry_after": strconv.Itoa(seconds) + "s"})
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func getClientIP(ctx huma.Context) string {
	// X-Forwarded-For may contain multiple IPs, first is client.
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
