// Package rpcutil holds the connect plumbing shared by every service: a JSON codec
// for plain Go request/response structs, handler construction, and error mapping.
package rpcutil

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
)

// JSONCodec replaces connect's protojson codec so handlers can use ordinary structs.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Procedure is one unary method of a service.
type Procedure struct {
	Path    string
	Handler http.Handler
}

// Unary builds a procedure served at /<service>/<method>.
func Unary[Req, Res any](service, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) Procedure {
	path := "/" + service + "/" + method
	return Procedure{
		Path: path,
		Handler: connect.NewUnaryHandler(path, fn,
			connect.WithCodec(JSONCodec{}),
			connect.WithInterceptors(LoggingInterceptor()),
		),
	}
}

// NewServiceHandler mounts procedures under a common prefix, mirroring generated
// connect code so callers can mux.Handle(path, handler).
func NewServiceHandler(service string, procs ...Procedure) (string, http.Handler) {
	mux := http.NewServeMux()
	for _, p := range procs {
		mux.Handle(p.Path, p.Handler)
	}
	return "/" + service + "/", mux
}

// NewClient builds a JSON client for one procedure; used by tests and tools.
func NewClient[Req, Res any](httpClient connect.HTTPClient, baseURL, service, method string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](httpClient, strings.TrimRight(baseURL, "/")+"/"+service+"/"+method,
		connect.WithCodec(JSONCodec{}),
	)
}

// LoggingInterceptor logs failed calls with their code and latency.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				code := connect.CodeOf(err)
				ev := log.Warn()
				if code == connect.CodeInternal || code == connect.CodeUnknown {
					ev = log.Error()
				}
				ev.Err(err).
					Str("procedure", req.Spec().Procedure).
					Str("code", code.String()).
					Dur("latency", time.Since(start)).
					Msg("rpc failed")
			}
			return res, err
		}
	}
}
