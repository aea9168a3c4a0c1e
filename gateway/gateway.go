package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jrsteele09/go-cookie-auth/internal/config"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceAuth    = "auth"
	ServiceProduct = "product"

	// ProductsPrefix routes /products and /products/... to the product service.
	ProductsPrefix = "/products"

	RouteGatewayHealth = "/gateway/health"
)

// Route sends requests whose path is Prefix, or starts with Prefix + "/", to Target.
type Route struct {
	Service string
	Prefix  string
	Target  *url.URL
}

func (r Route) matches(path string) bool {
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Gateway is a path-prefix reverse proxy in front of the auth and product services.
// It forwards cookies untouched and has no auth logic of its own.
type Gateway struct {
	engine   *gin.Engine
	routes   []Route
	fallback Route
	proxies  map[string]*httputil.ReverseProxy
	timeout  time.Duration
	log      zerolog.Logger
	tracer   trace.Tracer
}

// New builds the gateway from cfg. The gin mode is process-wide and is left to the caller.
func New(cfg config.Config, logger zerolog.Logger) (*Gateway, error) {
	authURL, err := parseTarget(cfg.GetAuthServiceURL())
	if err != nil {
		return nil, fmt.Errorf("[gateway New] AUTH_SERVICE_URL: %w", err)
	}
	productURL, err := parseTarget(cfg.GetProductServiceURL())
	if err != nil {
		return nil, fmt.Errorf("[gateway New] PRODUCT_SERVICE_URL: %w", err)
	}

	g := &Gateway{
		engine:   gin.New(),
		routes:   []Route{{Service: ServiceProduct, Prefix: ProductsPrefix, Target: productURL}},
		fallback: Route{Service: ServiceAuth, Prefix: "/", Target: authURL},
		proxies:  make(map[string]*httputil.ReverseProxy),
		timeout:  cfg.GetUpstreamTimeout(),
		log:      logger.With().Str("component", "gateway").Logger(),
		tracer:   otel.Tracer("github.com/jrsteele09/go-cookie-auth/gateway"),
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	for _, r := range append([]Route{g.fallback}, g.routes...) {
		g.proxies[r.Service] = g.newProxy(r, transport)
	}

	g.engine.Use(
		gin.CustomRecovery(g.recovery),
		RequestID(),
		Logger(g.log),
		CORS(cfg.GetAllowedOrigins(), cfg.GetAllowedMethods(), cfg.GetAllowedHeaders()),
	)
	g.engine.GET(RouteGatewayHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "service": "gateway"})
	})
	g.engine.NoRoute(g.proxy)
	g.engine.NoMethod(g.proxy)

	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.engine.ServeHTTP(w, r)
}

// Match returns the route that serves path.
func (g *Gateway) Match(path string) Route {
	for _, r := range g.routes {
		if r.matches(path) {
			return r
		}
	}
	return g.fallback
}

func (g *Gateway) proxy(c *gin.Context) {
	route := g.Match(c.Request.URL.Path)

	ctx, span := g.tracer.Start(c.Request.Context(), "gateway.proxy", trace.WithAttributes(
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.path", c.Request.URL.Path),
		attribute.String("target.service", route.Service),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	c.Request = c.Request.WithContext(ctx)

	if id := GetRequestID(c); id != "" {
		c.Request.Header.Set(RequestIDHeader, id)
	}
	c.Set(ServiceKey, route.Service)

	g.proxies[route.Service].ServeHTTP(c.Writer, c.Request)

	if c.Writer.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

func (g *Gateway) newProxy(route Route, transport http.RoundTripper) *httputil.ReverseProxy {
	target := route.Target
	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			// the gateway owns CORS
			for _, h := range corsHeaders {
				resp.Header.Del(h)
			}
			resp.Header.Set("X-Proxied-By", "gateway")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status, msg := http.StatusBadGateway, "Backend service unavailable"
			if isTimeout(err) {
				status, msg = http.StatusGatewayTimeout, "Backend service timed out"
			}
			g.log.Error().Err(err).Str("service", route.Service).Str("path", r.URL.Path).Msg("proxy error")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, fmt.Sprintf(`{"message":%q,"kind":"INTERNAL"}`, msg))
		},
	}
}

func (g *Gateway) recovery(c *gin.Context, rec any) {
	g.log.Error().Interface("panic", rec).Str("path", c.Request.URL.Path).Msg("gateway panic")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error", "kind": "INTERNAL"})
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute url", raw)
	}
	return u, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
