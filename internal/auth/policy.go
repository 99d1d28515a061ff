package auth

import (
	"net/http"
	"strings"
)

// Rule requires Role for requests matching Method and Path.
// A Path ending in "/" matches by prefix; an empty Method matches any method.
type Rule struct {
	Method string
	Path   string
	Role   Role
}

func (r Rule) matches(method, path string) bool {
	if r.Method != "" && r.Method != method {
		return false
	}
	return matchPath(r.Path, path)
}

func matchPath(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/") {
		return strings.HasPrefix(path, pattern)
	}
	return pattern == path
}

// DefaultRules guard the dashboard API. The first matching rule wins.
var DefaultRules = []Rule{
	{Method: http.MethodGet, Path: "/api/v1/thresholds", Role: RoleViewer},
	{Path: "/api/v1/thresholds", Role: RoleAdmin},
	{Method: http.MethodPost, Path: "/api/v1/actions/", Role: RoleOperator},
	{Path: "/api/v1/refresh", Role: RoleOperator},
	{Path: "/api/v1/archive", Role: RoleOperator},
	{Path: "/api/v1/exports/daily.pdf", Role: RoleManager},
	{Path: "/api/v1/exports/daily.xlsx", Role: RoleManager},
	{Path: "/api/v1/audit", Role: RoleManager},
	{Method: http.MethodGet, Path: "/api/", Role: RoleViewer},
	{Method: http.MethodHead, Path: "/api/", Role: RoleViewer},
	{Path: "/api/", Role: RoleOperator},
}

// QueryTokenPaths may carry the token as ?access_token=, since EventSource cannot set headers.
var QueryTokenPaths = []string{"/api/v1/alerts/stream"}

// Policy maps requests to the role they require.
type Policy struct {
	Rules           []Rule
	Exempt          []string
	QueryTokenPaths []string
}

// NewPolicy builds a policy from rules. Exempt paths ending in "/" match by prefix.
func NewPolicy(rules []Rule, exempt ...string) Policy {
	return Policy{Rules: rules, Exempt: exempt, QueryTokenPaths: QueryTokenPaths}
}

// NewDefaultPolicy builds a policy from DefaultRules.
func NewDefaultPolicy(exempt ...string) Policy {
	return NewPolicy(DefaultRules, exempt...)
}

// IsExempt returns true when a request skips authentication.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return false
	}
	for _, pattern := range p.Exempt {
		if matchPath(pattern, r.URL.Path) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role a request needs. ok is false for unguarded paths.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.Rules {
		if rule.matches(r.Method, r.URL.Path) {
			return rule.Role, true
		}
	}
	return "", false
}

func (p Policy) allowsQueryToken(path string) bool {
	for _, pattern := range p.QueryTokenPaths {
		if matchPath(pattern, path) {
			return true
		}
	}
	return false
}
