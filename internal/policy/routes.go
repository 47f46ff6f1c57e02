package policy

import (
	"path"
	"strings"

	"school-portal/internal/models"
)

type RouteRule struct {
	Prefix string
	Roles  []models.PrincipalKind
}

var allRoles = []models.PrincipalKind{models.KindAdmin, models.KindTeacher, models.KindStudent, models.KindParent}

// DefaultRouteRules is evaluated in order; the first matching prefix decides.
var DefaultRouteRules = []RouteRule{
	{Prefix: "/admin", Roles: []models.PrincipalKind{models.KindAdmin}},
	{Prefix: "/teacher", Roles: []models.PrincipalKind{models.KindTeacher}},
	{Prefix: "/student", Roles: []models.PrincipalKind{models.KindStudent}},
	{Prefix: "/parent", Roles: []models.PrincipalKind{models.KindParent}},
	{Prefix: "/list/teachers", Roles: []models.PrincipalKind{models.KindAdmin, models.KindTeacher}},
	{Prefix: "/list/students", Roles: []models.PrincipalKind{models.KindAdmin, models.KindTeacher}},
	{Prefix: "/list/parents", Roles: []models.PrincipalKind{models.KindAdmin, models.KindTeacher}},
	{Prefix: "/list/subjects", Roles: []models.PrincipalKind{models.KindAdmin}},
	{Prefix: "/list/classes", Roles: []models.PrincipalKind{models.KindAdmin, models.KindTeacher}},
	{Prefix: "/list/lessons", Roles: []models.PrincipalKind{models.KindAdmin, models.KindTeacher}},
	{Prefix: "/list/exams", Roles: allRoles},
	{Prefix: "/list/assignments", Roles: allRoles},
	{Prefix: "/list/results", Roles: allRoles},
	{Prefix: "/list/attendance", Roles: allRoles},
	{Prefix: "/list/events", Roles: allRoles},
	{Prefix: "/list/announcements", Roles: allRoles},
}

var publicPaths = map[string]struct{}{
	"/":                {},
	"/sign-in":         {},
	"/sign-up":         {},
	"/forgot-password": {},
	"/admin-login":     {},
	"/api/auth/login":  {},
	"/api/auth/logout": {},
	"/healthz":         {},
}

var assetPrefixes = []string{"/_next/", "/static/", "/assets/"}

type RouteTable struct {
	rules []RouteRule
}

func NewRouteTable(rules []RouteRule) *RouteTable {
	return &RouteTable{rules: rules}
}

// Match returns the first rule whose prefix covers p on a segment boundary,
// so "/admin" covers "/admin/users" but not "/administrator".
func (t *RouteTable) Match(p string) (RouteRule, bool) {
	p = cleanPath(p)
	for _, rule := range t.rules {
		if p == rule.Prefix || strings.HasPrefix(p, rule.Prefix+"/") {
			return rule, true
		}
	}
	return RouteRule{}, false
}

// CanEnterRoute applies the coarse filter. Paths no rule covers are open to
// any authenticated principal.
func (t *RouteTable) CanEnterRoute(role models.PrincipalKind, p string) bool {
	rule, ok := t.Match(p)
	if !ok {
		return true
	}
	for _, r := range rule.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func IsPublicPath(p string) bool {
	_, ok := publicPaths[cleanPath(p)]
	return ok
}

// IsPassThroughPath covers assets and API routes, which authenticate themselves.
func IsPassThroughPath(p string) bool {
	p = cleanPath(p)
	if p == "/api" || strings.HasPrefix(p, "/api/") || p == "/favicon.ico" {
		return true
	}
	for _, prefix := range assetPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return path.Ext(path.Base(p)) != ""
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}
