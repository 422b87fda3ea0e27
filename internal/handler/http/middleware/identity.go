package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"inkwell/pkg/ratelimit"
)

type ctxKey string

const ctxIdentity ctxKey = "ratelimit_identity"

// unknownIP keys requests whose address could not be parsed. They share one
// quota rather than escaping rate limiting.
const unknownIP = "unknown"

// IdentityFromContext returns the identity stored by Identity.Middleware.
func IdentityFromContext(ctx context.Context) (ratelimit.Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(ratelimit.Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id ratelimit.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// Identity resolves who a request comes from: the client IP, plus the user
// from a valid HS256 bearer token when a secret is configured.
//
// It never rejects a request. A missing or invalid token makes the request
// anonymous, so it is limited per IP.
type Identity struct {
	extractor IPExtractor
	secret    []byte
	logger    *slog.Logger
}

// NewIdentity creates an Identity resolver. An empty secret disables token
// parsing.
func NewIdentity(extractor IPExtractor, secret []byte, logger *slog.Logger) *Identity {
	if extractor == nil {
		extractor = &RemoteAddrExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Identity{extractor: extractor, secret: secret, logger: logger}
}

// Resolve returns the identity for r.
func (i *Identity) Resolve(r *http.Request) ratelimit.Identity {
	ip, err := i.extractor.ExtractIP(r)
	if err != nil {
		i.logger.Warn("failed to extract client IP",
			slog.String("remote_addr", r.RemoteAddr),
			slog.Any("error", err))
		ip = unknownIP
	}

	id := ratelimit.Identity{IP: ip}
	if len(i.secret) == 0 {
		return id
	}

	authz := r.Header.Get("Authorization")
	if authz == "" {
		return id
	}
	user, err := subjectFromBearer(authz, i.secret)
	if err != nil {
		i.logger.Debug("ignoring bearer token for rate limiting",
			slog.String("ip", ip),
			slog.Any("error", err))
		return id
	}
	id.UserID = user
	return id
}

// Middleware stores the resolved identity in the request context.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := i.Resolve(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func subjectFromBearer(authz string, secret []byte) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", errors.New("missing bearer token")
	}

	tok, err := jwt.Parse(strings.TrimPrefix(authz, prefix),
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return "", errors.New("invalid token")
	}

	sub, err := tok.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid sub claim")
	}
	return sub, nil
}
