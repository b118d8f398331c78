package api

import "net/http"

// Group registers routes under a common path prefix.
type Group struct {
	parent *Router
	prefix string
}

// Handle registers handle for method on prefix+path.
func (g *Group) Handle(method, path string, handle Handler) {
	g.parent.Handle(method, g.prefix+path, handle)
}

func (g *Group) GET(path string, handle Handler) {
	g.Handle(http.MethodGet, path, handle)
}

func (g *Group) POST(path string, handle Handler) {
	g.Handle(http.MethodPost, path, handle)
}
