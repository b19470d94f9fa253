// Package routes declares HTTP route tables and registers them on a ServeMux.
package routes

import "net/http"

// Route binds an HTTP method and pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group organizes routes under a common prefix.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	walk("", groups, func(pattern string, route Route) {
		mux.HandleFunc(pattern, route.Handler)
	})
}

// Patterns returns the ServeMux patterns the groups would register, in declaration order.
func Patterns(groups ...Group) []string {
	patterns := make([]string, 0)
	walk("", groups, func(pattern string, _ Route) {
		patterns = append(patterns, pattern)
	})
	return patterns
}

func walk(parent string, groups []Group, fn func(pattern string, route Route)) {
	for _, group := range groups {
		prefix := parent + group.Prefix
		for _, route := range group.Routes {
			fn(route.Method+" "+prefix+route.Pattern, route)
		}
		walk(prefix, group.Children, fn)
	}
}
