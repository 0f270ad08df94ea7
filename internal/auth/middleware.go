package auth

import (
	"net/http"
	"strings"
)

// Policy decides which requests skip auth and what role each one requires.
type Policy struct {
	ExemptPaths []string
}

// NewDefaultPolicy constructs a policy with exempt path prefixes.
func NewDefaultPolicy(exempt []string) Policy {
	return Policy{ExemptPaths: exempt}
}

// IsExempt reports whether the request bypasses auth entirely.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return false
	}
	for _, prefix := range p.ExemptPaths {
		if prefix != "" && strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole returns the minimum role for the request. Reads need viewer,
// writes need editor.
func (p Policy) RequiredRole(r *http.Request) Role {
	if r == nil {
		return RoleAdmin
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		return RoleViewer
	default:
		return RoleEditor
	}
}

// Middleware validates JWTs and enforces the role floor.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap applies auth to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		claims, err := ParseJWT(token, m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, m.Policy.RequiredRole(r)) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
