package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Route returns the chi pattern matched for r. chi fills the pattern in while
// routing, so outer middleware must call Route after the inner handler ran.
func Route(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

func routeOr(r *http.Request, fallback string) string {
	if route := Route(r); route != "" {
		return route
	}
	return fallback
}
