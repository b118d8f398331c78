package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"

	"github.com/semihalev/rendezvous/accesslist"
)

type (
	Context struct {
		Request *http.Request
		Writer  http.ResponseWriter
		Params  *Params
	}

	Handler func(ctx *Context)

	Param struct {
		Key   string
		Value string
	}

	Params []Param

	Json map[string]any
)

func (ctx *Context) JSON(code int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		ctx.Writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	ctx.Writer.Header().Set("Content-Type", "application/json")
	ctx.Writer.WriteHeader(code)

	_, _ = ctx.Writer.Write(buf)
}

func (ctx *Context) Text(code int, text string) {
	ctx.Writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	ctx.Writer.WriteHeader(code)

	_, _ = ctx.Writer.Write([]byte(text))
}

// Param returns the decoded path variable key.
func (ctx *Context) Param(key string) string {
	params := *ctx.Params
	for _, p := range params {
		if p.Key == key {
			return p.Value
		}
	}

	return ""
}

// RemoteIP returns the client ip of the request, nil if it can not be parsed.
func (ctx *Context) RemoteIP() net.IP {
	return accesslist.ParseRemoteIP(ctx.Request.RemoteAddr)
}

func (ctx *Context) addParameter(key, value string) {
	if v, err := url.PathUnescape(value); err == nil {
		value = v
	}

	*ctx.Params = append(*ctx.Params, Param{
		Key:   key,
		Value: value,
	})
}
