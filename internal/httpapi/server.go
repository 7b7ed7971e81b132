// Package httpapi is the HTTP surface of the service.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"github.com/vm-affekt/streamfetch/internal/proxy"
	"go.uber.org/multierr"
)

// Resolver expands short links before platform detection.
type Resolver interface {
	Resolve(ctx context.Context, link string) (string, error)
}

// Server holds the dependencies of every handler.
type Server struct {
	invoker         app.Invoker
	proxy           *proxy.Proxy
	resolver        Resolver
	downloadTimeout time.Duration
	allowedOrigins  []string
	debugMode       bool

	engine *gin.Engine
	srv    *http.Server
}

type Options struct {
	// Addr is the listen address, ":4000" when empty.
	Addr    string
	Invoker app.Invoker
	Proxy   *proxy.Proxy
	// Resolver is optional. Without it short links are passed to the extractor as is.
	Resolver        Resolver
	DownloadTimeout time.Duration
	AllowedOrigins  []string
	DebugMode       bool
}

func New(opts Options) *Server {
	if opts.Proxy == nil {
		opts.Proxy = proxy.New(0, 0)
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 300 * time.Second
	}
	s := &Server{
		invoker:         opts.Invoker,
		proxy:           opts.Proxy,
		resolver:        opts.Resolver,
		downloadTimeout: opts.DownloadTimeout,
		allowedOrigins:  opts.AllowedOrigins,
		debugMode:       opts.DebugMode,
	}
	if opts.Addr == "" {
		opts.Addr = ":4000"
	}
	s.engine = s.routes()
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	if s.debugMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(requestContext(), recovery(), accessLog())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.handleHealth)
	r.GET("/download", s.handleDownload)
	api := r.Group("/api")
	{
		api.GET("/download", s.handleDownload)
	}
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition", "Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	origins := s.allowedOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler is the root handler, also used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	logging.FromContextS(context.Background()).Infof("HTTP server is listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done, then closes the remaining connections. Closing a connection
// cancels its request context, which stops the extractor of that request.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return multierr.Append(err, s.srv.Close())
	}
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
