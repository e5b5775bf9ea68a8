package middleware

import (
	"net/http"
	"strings"

	"rainbow-buyers/internal/token"
)

type GuardAction int

const (
	GuardAllow GuardAction = iota
	GuardRedirect
)

type GuardConfig struct {
	LoginPath      string
	HomePath       string
	AdminPrefix    string
	PublicPaths    []string
	BypassPrefixes []string
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		LoginPath:   "/auth/login",
		HomePath:    "/",
		AdminPrefix: "/admin",
		PublicPaths: []string{
			"/auth/login",
			"/auth/signup",
			"/auth/forgot-password",
			"/auth/verify-otp",
			"/auth/verify-email",
		},
		BypassPrefixes: []string{"/api/", "/health", "/assets/", "/favicon.ico"},
	}
}

// GuardRequest is everything a guard decision depends on.
type GuardRequest struct {
	Path        string
	AccessToken string
}

type GuardDecision struct {
	Action      GuardAction
	Location    string
	ClearCookie bool
	Claims      *token.Claims
}

// RouteGuard gates page navigation on the access token cookie. It holds no
// per-request state.
type RouteGuard struct {
	cfg      GuardConfig
	verifier tokenVerifier
	cookies  Cookies
	public   map[string]struct{}
}

func NewRouteGuard(cfg GuardConfig, verifier tokenVerifier, cookies Cookies) *RouteGuard {
	public := make(map[string]struct{}, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[normalizePath(p)] = struct{}{}
	}
	if cfg.LoginPath != "" {
		public[normalizePath(cfg.LoginPath)] = struct{}{}
	}

	return &RouteGuard{cfg: cfg, verifier: verifier, cookies: cookies, public: public}
}

func (g *RouteGuard) isPublic(path string) bool {
	_, ok := g.public[normalizePath(path)]
	return ok
}

// isBypassed matches whole path segments, so /health does not cover /healthcare.
func (g *RouteGuard) isBypassed(path string) bool {
	for _, prefix := range g.cfg.BypassPrefixes {
		if underPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *RouteGuard) isAdmin(path string) bool {
	return underPrefix(path, g.cfg.AdminPrefix)
}

func underPrefix(path string, prefix string) bool {
	prefix = normalizePath(prefix)
	if prefix == "/" || prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// Evaluate decides what happens to one navigation request.
func (g *RouteGuard) Evaluate(req GuardRequest) GuardDecision {
	path := normalizePath(req.Path)
	if g.isBypassed(path) {
		return GuardDecision{Action: GuardAllow}
	}

	public := g.isPublic(path)
	raw := strings.TrimSpace(req.AccessToken)

	if raw == "" {
		if public {
			return GuardDecision{Action: GuardAllow}
		}
		return GuardDecision{Action: GuardRedirect, Location: g.cfg.LoginPath}
	}

	claims, err := g.verifier.Verify(raw, token.TypeAccess)
	if err != nil {
		if public {
			return GuardDecision{Action: GuardAllow, ClearCookie: true}
		}
		return GuardDecision{Action: GuardRedirect, Location: g.cfg.LoginPath, ClearCookie: true}
	}

	if public {
		return GuardDecision{Action: GuardRedirect, Location: g.cfg.HomePath, Claims: claims}
	}

	if g.isAdmin(path) && !claims.Role.IsAdmin() {
		return GuardDecision{Action: GuardRedirect, Location: g.cfg.HomePath, Claims: claims}
	}

	return GuardDecision{Action: GuardAllow, Claims: claims}
}

func (g *RouteGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Evaluate(GuardRequest{
			Path:        r.URL.Path,
			AccessToken: CookieValue(r, AccessTokenCookie),
		})

		if decision.ClearCookie {
			g.cookies.Clear(w, AccessTokenCookie)
		}

		if decision.Action == GuardRedirect {
			http.Redirect(w, r, decision.Location, http.StatusTemporaryRedirect)
			return
		}

		if decision.Claims != nil {
			r = r.WithContext(WithClaims(r.Context(), decision.Claims))
		}
		next.ServeHTTP(w, r)
	})
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
