package web

import (
	"path"

	"github.com/labstack/echo/v4"
)

// Controller registers its endpoints on a router.
type Controller interface {
	Register(router *Router)
}

type Router struct {
	*echo.Echo

	// urlPath is the prefix shared by routes registered through this router
	urlPath string
}

func NewRouter() *Router {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return &Router{
		Echo:    e,
		urlPath: "/",
	}
}

func (router *Router) Group(urlPath string) *Router {
	return &Router{
		Echo:    router.Echo,
		urlPath: path.Join(router.urlPath, urlPath),
	}
}

// Register registers controller's endpoints
func (router *Router) Register(controllers ...Controller) {
	for _, controller := range controllers {
		controller.Register(router)
	}
}

// GET registers a new GET route for a path with matching handler in the router
// with optional route-level middleware.
func (router *Router) GET(urlPath string, handle echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	router.Echo.GET(path.Join(router.urlPath, urlPath), handle, m...)
}

// POST registers a new POST route for a path with matching handler in the
// router with optional route-level middleware.
func (router *Router) POST(urlPath string, handle echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	router.Echo.POST(path.Join(router.urlPath, urlPath), handle, m...)
}
