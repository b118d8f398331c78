package api

import (
	"context"
	"net/http"
	"net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/semihalev/rendezvous/accesslist"
	"github.com/semihalev/rendezvous/config"
	"github.com/semihalev/rendezvous/metrics"
	"github.com/semihalev/rendezvous/ratelimit"
	"github.com/semihalev/rendezvous/registry"
	"github.com/semihalev/zlog/v2"
)

// API type
type API struct {
	router *Router

	registry   *registry.Registry
	metrics    *metrics.Metrics
	accesslist *accesslist.AccessList
	ratelimit  *ratelimit.RateLimit
}

var debugpprof bool

func init() {
	_, debugpprof = os.LookupEnv("RENDEZVOUS_PPROF")
}

// Replies of the wait endpoint.
const (
	PairedReply   = "Second party arrived"
	TimedOutReply = "Timeout"
)

// New return new api
func New(cfg *config.Config, reg *registry.Registry, m *metrics.Metrics) *API {
	a := &API{
		router:     NewRouter(),
		registry:   reg,
		metrics:    m,
		accesslist: accesslist.New(cfg.AccessList),
		ratelimit:  ratelimit.New(cfg.ClientRateLimit),
	}

	a.routes()

	return a
}

func (a *API) routes() {
	if debugpprof {
		profiler := a.router.Group("/debug")
		{
			profiler.GET("/", func(ctx *Context) {
				http.Redirect(ctx.Writer, ctx.Request, "/debug/pprof/", http.StatusMovedPermanently)
			})
			profiler.GET("/pprof/", func(ctx *Context) { pprof.Index(ctx.Writer, ctx.Request) })
			profiler.GET("/pprof/cmdline", func(ctx *Context) { pprof.Cmdline(ctx.Writer, ctx.Request) })
			profiler.GET("/pprof/profile", func(ctx *Context) { pprof.Profile(ctx.Writer, ctx.Request) })
			profiler.GET("/pprof/symbol", func(ctx *Context) { pprof.Symbol(ctx.Writer, ctx.Request) })
			profiler.GET("/pprof/trace", func(ctx *Context) { pprof.Trace(ctx.Writer, ctx.Request) })
			profiler.GET("/pprof/{profile}", func(ctx *Context) { pprof.Index(ctx.Writer, ctx.Request) })
		}
	}

	rendezvous := a.router.Group("/wait-for-second-party")
	{
		rendezvous.POST("/{key:[^/]*}", a.waitForSecondParty)
	}

	v1 := a.router.Group("/api/v1")
	{
		v1.GET("/waiting", a.waiting)
	}

	a.router.GET("/metrics", a.prometheus)
}

// Run starts background maintenance until ctx is done.
func (a *API) Run(ctx context.Context) {
	go a.ratelimit.Run(ctx)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *API) waitForSecondParty(ctx *Context) {
	key := ctx.Param("key")
	ip := ctx.RemoteIP()

	if !a.accesslist.Allowed(ip) {
		a.reject("accesslist")
		ctx.Text(http.StatusForbidden, http.StatusText(http.StatusForbidden))
		return
	}

	if !a.ratelimit.Allow(ip) {
		a.reject("ratelimit")
		ctx.Text(http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
		return
	}

	zlog.Debug("Received wait request", "key", key, "client", ctx.Request.RemoteAddr)

	// the wait is bounded by the registry, a dropped client does not cut it short
	switch a.registry.Arrive(key) {
	case registry.Paired:
		ctx.Text(http.StatusOK, PairedReply)
	default:
		zlog.Info("Timeout occurred", "key", key)
		ctx.Text(http.StatusOK, TimedOutReply)
	}
}

func (a *API) waiting(ctx *Context) {
	ctx.JSON(http.StatusOK, Json{"waiting": a.registry.Len()})
}

func (a *API) prometheus(ctx *Context) {
	promhttp.Handler().ServeHTTP(ctx.Writer, ctx.Request)
}

func (a *API) reject(reason string) {
	if a.metrics != nil {
		a.metrics.Rejected(reason)
	}
}
