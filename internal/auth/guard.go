package auth

import (
	"log"
	"net/http"
	"strings"
)

const realm = `Bearer realm="benchlab"`

// Guard requires a bearer token of at least a minimum role on every path
// except the open ones.
type Guard struct {
	secret  []byte
	minRole Role
	open    map[string]struct{}
	logger  *log.Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithOpenPaths lets requests for the exact paths through unauthenticated.
func WithOpenPaths(paths ...string) GuardOption {
	return func(g *Guard) {
		for _, p := range paths {
			g.open[p] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for rejected requests.
func WithLogger(logger *log.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard builds a guard for secret. An empty secret disables auth and
// returns a nil Guard, whose Wrap is a no-op.
func NewGuard(secret []byte, minRole string, opts ...GuardOption) (*Guard, error) {
	if len(secret) == 0 {
		return nil, nil
	}
	role, err := ParseRole(minRole)
	if err != nil {
		return nil, err
	}
	g := &Guard{
		secret:  secret,
		minRole: role,
		open:    map[string]struct{}{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// MinRole returns the lowest role admitted.
func (g *Guard) MinRole() Role {
	return g.minRole
}

// Wrap applies the guard to next.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	if g == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.open[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		id, err := ParseToken(bearerToken(r), g.secret)
		if err != nil {
			g.logger.Printf("auth: reject %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
			w.Header().Set("WWW-Authenticate", realm)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !id.Role.Covers(g.minRole) {
			g.logger.Printf("auth: deny %s %s for %s: requires %s", r.Method, r.URL.Path, id, g.minRole)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
