package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/logger"
	"github.com/sportscarhub/storefront/internal/metrics"
	"golang.org/x/time/rate"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

// Claims is the bearer token payload. Role is optional; "operator" grants
// staff access to every order.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c Claims) Identity() domain.Identity {
	id := domain.Identity{UserID: c.Subject, Email: c.Email}
	if c.Role != "" {
		id.Roles = []string{c.Role}
	}
	return id
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller, or the anonymous identity.
func IdentityFromContext(ctx context.Context) domain.Identity {
	if id, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return id
	}
	return domain.Identity{}
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticator resolves the caller from the request. Requests without
// credentials continue as anonymous; the core operations decide what an
// anonymous caller may do. Invalid credentials are rejected here.
type Authenticator struct {
	secret     []byte
	devHeaders bool
}

func NewAuthenticator(secret string, devHeaders bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), devHeaders: devHeaders}
}

var errBadAuthHeader = errors.New("invalid authorization header")

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.identify(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}
		if id.IsAuthenticated() {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) identify(r *http.Request) (domain.Identity, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		if a.devHeaders {
			return devIdentity(r), nil
		}
		return domain.Identity{}, nil
	}

	parts := strings.Fields(auth)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return domain.Identity{}, errBadAuthHeader
	}
	if len(a.secret) == 0 {
		return domain.Identity{}, errors.New("bearer tokens are not accepted")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return domain.Identity{}, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, errors.New("token has no subject")
	}
	return claims.Identity(), nil
}

// devIdentity trusts X-User-ID, X-User-Email and X-User-Role. Local use only.
func devIdentity(r *http.Request) domain.Identity {
	id := domain.Identity{
		UserID: strings.TrimSpace(r.Header.Get("X-User-ID")),
		Email:  strings.TrimSpace(r.Header.Get("X-User-Email")),
	}
	if role := strings.TrimSpace(r.Header.Get("X-User-Role")); role != "" {
		id.Roles = []string{role}
	}
	return id
}

// LoggingMiddleware attaches a request logger to the context and logs each
// completed request.
func LoggingMiddleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := logger.WithTrace(r.Context(), base).With().
				Str("request_id", getRequestID(r.Context())).
				Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", statusOf(ww)).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("user_id", IdentityFromContext(r.Context()).UserID).
				Msg("request")
		})
	}
}

// MetricsMiddleware records request counts by route pattern, not raw path.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.RecordHTTPRequest(r.Method, route, statusOf(ww), time.Since(start))
		})
	}
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

// MaxBodyMiddleware caps request bodies.
func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

type userLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter keeps one token bucket per authenticated user, falling back to
// the remote address for anonymous callers.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	rps      rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*userLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	ul, ok := l.limiters[key]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[key] = ul
	}
	ul.last = now
	return ul.limiter.AllowN(now, 1)
}

// Sweep forgets limiters idle for longer than the idle TTL.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, ul := range l.limiters {
		if now.Sub(ul.last) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
}

// RunSweeper calls Sweep every interval until ctx is done.
func (l *RateLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := IdentityFromContext(r.Context()).UserID
		if key == "" {
			key = "addr:" + r.RemoteAddr
		}
		if !l.allow(key) {
			w.Header().Set("Retry-After", "1")
			respondError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many checkout attempts, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(r *http.Request) zerolog.Logger {
	return logger.FromContext(r.Context(), zerolog.Nop())
}
