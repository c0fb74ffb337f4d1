package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/yndnr/tokgate/internal/core/domain"
	"github.com/yndnr/tokgate/internal/server/httpstatus"
	"github.com/yndnr/tokgate/internal/telemetry/logger"
)

var errNoRoute = domain.NewDomainError(domain.KindNotFound, "no route for path")

// Route maps a path prefix to an upstream base URL.
type Route struct {
	Prefix   string
	Upstream string
	// StripPrefix removes Prefix from the path before forwarding.
	StripPrefix bool
}

type route struct {
	Route
	proxy *httputil.ReverseProxy
}

// RouteTable reverse-proxies requests by longest matching prefix.
type RouteTable struct {
	routes    []*route
	transport http.RoundTripper
	log       *slog.Logger
}

// NewRouteTable builds a proxy per route. A nil transport uses
// http.DefaultTransport.
func NewRouteTable(routes []Route, transport http.RoundTripper, log *slog.Logger) (*RouteTable, error) {
	if log == nil {
		log = logger.Discard().Slog()
	}
	t := &RouteTable{log: log, transport: transport}
	for _, r := range routes {
		target, err := url.Parse(r.Upstream)
		if err != nil {
			return nil, fmt.Errorf("route %s: parse upstream: %w", r.Prefix, err)
		}
		if target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: upstream %q must be an absolute url", r.Prefix, r.Upstream)
		}
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		t.routes = append(t.routes, &route{Route: r, proxy: t.newProxy(r, target)})
	}
	sort.SliceStable(t.routes, func(i, j int) bool {
		return len(t.routes[i].Prefix) > len(t.routes[j].Prefix)
	})
	return t, nil
}

func (t *RouteTable) newProxy(r Route, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: t.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			if r.StripPrefix && r.Prefix != "/" {
				pr.Out.URL.Path = strings.TrimPrefix(pr.Out.URL.Path, r.Prefix)
				pr.Out.URL.RawPath = ""
				if pr.Out.URL.Path == "" {
					pr.Out.URL.Path = "/"
				}
			}
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
		},
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			rid := logger.RequestIDFromContext(req.Context())
			t.log.Warn("upstream request failed",
				"route", r.Prefix, "upstream", r.Upstream, "error", err, "request_id", rid)
			httpstatus.Write(w, domain.ErrUnavailable.WithDetails("upstream unreachable"), rid)
		},
	}
}

// Match returns the route serving p.
func (t *RouteTable) Match(p string) (Route, bool) {
	if r := t.match(p); r != nil {
		return r.Route, true
	}
	return Route{}, false
}

func (t *RouteTable) match(p string) *route {
	for _, r := range t.routes {
		if r.Prefix == "/" || p == r.Prefix || strings.HasPrefix(p, r.Prefix+"/") {
			return r
		}
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (t *RouteTable) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p := cleanPath(req.URL.Path)
	r := t.match(p)
	if r == nil {
		httpstatus.Write(w, errNoRoute.WithDetails(p), logger.RequestIDFromContext(req.Context()))
		return
	}
	// Forward the path that was matched, keeping a trailing slash.
	if strings.HasSuffix(req.URL.Path, "/") && p != "/" {
		p += "/"
	}
	if p != req.URL.Path {
		req.URL.Path = p
		req.URL.RawPath = ""
	}
	r.proxy.ServeHTTP(w, req)
}
