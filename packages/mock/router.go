package mock

import (
	"net/http"
	"regexp"
	"strings"
)

// HandlerFunc answers a matched route. Params holds the path parameters.
type HandlerFunc func(r *http.Request, params map[string]string) (int, any)

type Route struct {
	Method      string
	PathPattern string
	PathRegex   *regexp.Regexp
	Name        string
	Handler     HandlerFunc
}

// Router matches incoming requests to routes in registration order.
type Router struct {
	routes []*Route
}

func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

// Handle registers a route. Path segments written as {name} match one
// segment and are passed to the handler.
func (r *Router) Handle(method, pattern, name string, h HandlerFunc) {
	r.routes = append(r.routes, &Route{
		Method:      strings.ToUpper(method),
		PathPattern: pattern,
		PathRegex:   createPathRegex(pattern),
		Name:        name,
		Handler:     h,
	})
}

// Match finds a route matching the given method and path. The second
// result reports whether any route matched the path with another method.
func (r *Router) Match(method, path string) (*Route, map[string]string, bool) {
	path = normalizePath(path)
	pathMatched := false

	for _, route := range r.routes {
		params := matchPath(route, path)
		if params == nil {
			continue
		}
		if !strings.EqualFold(route.Method, method) {
			pathMatched = true
			continue
		}
		return route, params, true
	}

	return nil, nil, pathMatched
}

func (r *Router) Routes() []*Route {
	return r.routes
}

func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

var paramPattern = regexp.MustCompile(`\\\{([A-Za-z_][A-Za-z0-9_]*)\\\}`)

func createPathRegex(pattern string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(normalizePath(pattern))
	return regexp.MustCompile("^" + paramPattern.ReplaceAllString(quoted, `(?P<$1>[^/]+)`) + "$")
}

func matchPath(route *Route, path string) map[string]string {
	matches := route.PathRegex.FindStringSubmatch(path)
	if matches == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range route.PathRegex.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = matches[i]
		}
	}
	return params
}
