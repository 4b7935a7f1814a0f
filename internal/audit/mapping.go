package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// routeOverrides names routes whose verb cannot be inferred from method and path.
var routeOverrides = map[string]ActionResource{
	"POST /v1/auth/logout":           {Action: "logout", Resource: "session"},
	"POST /v1/auth/password/reset":   {Action: "password_reset", Resource: "principal"},
	"DELETE /v1/sessions/:id":        {Action: "revoke", Resource: "session"},
	"POST /v1/sessions/revoke-others": {Action: "revoke_others", Resource: "session"},
}

// ParseRoute returns action and resource for an HTTP method and gin route template
// (e.g. GET /v1/sessions). Resource is the first path segment after the version,
// singularised; action is derived from the method unless the route is listed in
// routeOverrides.
func ParseRoute(method, route string) ActionResource {
	if ar, ok := routeOverrides[method+" "+route]; ok {
		return ar
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	if len(segments) > 0 && strings.HasPrefix(segments[0], "v") {
		segments = segments[1:]
	}
	if len(segments) == 0 || segments[0] == "" {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	resource := strings.TrimSuffix(segments[0], "s")
	byID := len(segments) > 1 && strings.HasPrefix(segments[len(segments)-1], ":")

	var action string
	switch method {
	case "GET":
		switch {
		case byID:
			action = "get"
		case len(segments) > 1:
			action = segments[len(segments)-1]
		default:
			action = "list"
		}
	case "POST":
		if len(segments) > 1 && !byID {
			action = strings.ReplaceAll(segments[len(segments)-1], "-", "_")
		} else {
			action = "create"
		}
	case "PUT", "PATCH":
		action = "update"
	case "DELETE":
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return ActionResource{Action: action, Resource: resource}
}
