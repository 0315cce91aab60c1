package audit

import "strings"

// Decision is the outcome of a single RouteGate.CheckAccess call.
type Decision struct {
	Allowed            bool
	RequiredPermission string
	Route              string
}

type routePermission struct {
	prefix     string
	permission string
}

// RouteGate enforces ordered-prefix RBAC checks in front of the management
// API: the first matching route prefix determines the permission required.
type RouteGate struct {
	routes []routePermission
}

// NewRouteGate constructs a RouteGate with the default management-API
// route table.
func NewRouteGate() *RouteGate {
	return &RouteGate{routes: defaultRoutePermissions()}
}

func defaultRoutePermissions() []routePermission {
	return []routePermission{
		{"/api/v1/management/campaigns", "campaign_read"},
		{"/api/v1/management/creatives", "creative_read"},
		{"/api/v1/management/journeys", "journey_read"},
		{"/api/v1/management/experiments", "experiment_read"},
		{"/api/v1/management/dco", "dco_read"},
		{"/api/v1/management/cdp", "cdp_read"},
		{"/api/v1/management/monitoring", "analytics_read"},
		{"/api/v1/management/billing", "billing_read"},
		{"/api/v1/management/users", "user_manage"},
		{"/api/v1/management/platform", "tenant_admin"},
		{"/api/v1/management/ops", "system_admin"},
	}
}

// writeMethods is the set of HTTP methods that require the write variant
// of a route's permission.
var writeMethods = map[string]bool{
	"POST": true, "PUT": true, "DELETE": true, "PATCH": true,
}

// CheckAccess finds the first route rule whose prefix matches route and
// reports whether userPermissions satisfy it for method. An unmatched
// route is an open endpoint: always allowed.
func (g *RouteGate) CheckAccess(route, method string, userPermissions []string) Decision {
	for _, rp := range g.routes {
		if !strings.HasPrefix(route, rp.prefix) {
			continue
		}

		required := rp.permission
		if writeMethods[method] {
			required = strings.Replace(required, "_read", "_write", 1)
		}

		if hasPermission(userPermissions, required) || hasPermission(userPermissions, "system_admin") {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, RequiredPermission: required, Route: route}
	}
	return Decision{Allowed: true}
}

func hasPermission(permissions []string, target string) bool {
	for _, p := range permissions {
		if p == target {
			return true
		}
	}
	return false
}
