package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware validates bearer tokens and enforces role rules.
type Middleware struct {
	secret []byte
	policy Policy
	logger *zap.Logger
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*Middleware)

// WithLogger logs rejected requests.
func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger.With(zap.String("component", "auth"))
		}
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap applies authentication and role checks to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}
		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(m.extractToken(r), m.secret)
		if err != nil {
			m.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("WWW-Authenticate", `Bearer realm="`+issuer+`"`)
			message := ErrUnauthorized.Error()
			if errors.Is(err, ErrTokenExpired) {
				message = ErrTokenExpired.Error()
			}
			http.Error(w, message, http.StatusUnauthorized)
			return
		}
		id := claims.Identity()
		if !RoleAtLeast(id.Role, required) {
			m.logger.Info("request forbidden",
				zap.String("path", r.URL.Path),
				zap.String("subject", id.Subject),
				zap.String("role", string(id.Role)),
				zap.String("required", string(required)),
			)
			http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *Middleware) extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		if m.policy.allowsQueryToken(r.URL.Path) {
			return r.URL.Query().Get("access_token")
		}
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
