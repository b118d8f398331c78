package api

import (
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"sync"

	"github.com/gorilla/mux"
	"github.com/semihalev/zlog/v2"
)

// Router dispatches requests to handlers with a pooled Context.
type Router struct {
	mux *mux.Router

	ctxPool sync.Pool
}

var extraHeaders = map[string]string{
	"Server":                       "rendezvous",
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET,POST",
	"Cache-Control":                "no-cache, no-store, no-transform, must-revalidate, private, max-age=0",
	"Pragma":                       "no-cache",
}

// NewRouter return new router
func NewRouter() *Router {
	r := &Router{
		// keys are opaque, so a %2F must not split a path segment and
		// a "." or ".." key must not be cleaned into a redirect
		mux: mux.NewRouter().UseEncodedPath().SkipClean(true),
	}

	r.ctxPool.New = func() any {
		params := make(Params, 0, 4)
		return &Context{Params: &params}
	}

	return r
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			zlog.Error("Recovered in API", "recover", r)

			_, _ = os.Stderr.WriteString(fmt.Sprintf("panic: %v\n\n", r))
			debug.PrintStack()
		}
	}()

	for k, v := range extraHeaders {
		w.Header().Set(k, v)
	}

	rt.mux.ServeHTTP(w, r)
}

// Handle registers handle for method and path. Path variables use the
// gorilla/mux syntax, e.g. /items/{id}.
func (rt *Router) Handle(method, path string, handle Handler) {
	rt.mux.Handle(path, rt.wrap(handle)).Methods(method)
}

func (rt *Router) GET(path string, handle Handler) {
	rt.Handle(http.MethodGet, path, handle)
}

func (rt *Router) POST(path string, handle Handler) {
	rt.Handle(http.MethodPost, path, handle)
}

func (rt *Router) Group(rp string) *Group {
	return &Group{parent: rt, prefix: rp}
}

func (rt *Router) wrap(handle Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := rt.getContext(w, r)
		defer rt.putContext(ctx)

		for k, v := range mux.Vars(r) {
			ctx.addParameter(k, v)
		}

		handle(ctx)
	})
}

func (rt *Router) getContext(w http.ResponseWriter, r *http.Request) *Context {
	ctx := rt.ctxPool.Get().(*Context)

	ctx.Request = r
	ctx.Writer = w
	(*ctx.Params) = (*ctx.Params)[:0]

	return ctx
}

func (rt *Router) putContext(ctx *Context) {
	ctx.Request = nil
	ctx.Writer = nil
	rt.ctxPool.Put(ctx)
}
