// Package http exposes the operator surface and a WebSocket bridge onto the
// same binary protocol the TCP acceptor speaks.
package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/store"
)

// Hub is the part of the command authority the admin surface talks to.
type Hub interface {
	core.Submitter
	Metrics() map[string]any
}

// Options configures the admin server.
type Options struct {
	Addr              string
	AdminTokenHash    string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	MaxFrameSize      int
	SnapshotTimeout   time.Duration
}

// NewServer builds the admin HTTP server. journal may be nil when the
// connection journal is disabled.
func NewServer(hub Hub, journal store.Journal, opts Options, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(hub, journal, opts, logger),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
}

// NewRouter routes /ws to the WebSocket bridge and everything else to the
// gin engine. The bridge hijacks the connection, so it stays outside gin.
func NewRouter(hub Hub, journal store.Journal, opts Options, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, opts.MaxFrameSize, logger))
	mux.Handle("/", newEngine(hub, journal, opts, logger))
	return mux
}

func newEngine(hub Hub, journal store.Journal, opts Options, logger *zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) { c.String(stdhttp.StatusOK, "ok") })

	h := NewAdminHandlers(hub, journal, opts.SnapshotTimeout, logger)
	admin := r.Group("/admin")
	admin.Use(AdminAuth(opts.AdminTokenHash, logger))
	{
		admin.GET("/metrics", h.Metrics)
		admin.GET("/sessions", h.Sessions)
		admin.POST("/sessions/:id/kick", h.Kick)
		admin.POST("/announce", h.Announce)
		admin.GET("/journal", h.Journal)
	}

	return r
}
