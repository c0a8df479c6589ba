// Package server exposes trace resolution over HTTP.
//
// Routes:
//
//	POST /v1/unfuscate  resolve a trace (JSON body, or text/plain with ?target=&format=)
//	GET  /v1/versions   versions present in the store
//	GET  /v1/stats      store statistics, when the store can report them
//	GET  /v1/watch      watcher status, when serving with a watcher
//	GET  /healthz       liveness
//	GET  /metrics       Prometheus metrics
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"unfuscator/internal/mapping"
	"unfuscator/internal/render"
	"unfuscator/internal/signature"
	"unfuscator/internal/unfuscate"
	"unfuscator/internal/version"
	"unfuscator/internal/watch"
)

// MaxTraceBytes limits the size of a request body.
const MaxTraceBytes = 4 << 20

// WatchStatuser reports watcher activity.
type WatchStatuser interface {
	Status() watch.Status
}

// UnfuscateRequest is the JSON body of POST /v1/unfuscate.
type UnfuscateRequest struct {
	Trace         string `json:"trace"`
	TargetVersion string `json:"target_version"`
	Format        string `json:"format"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Line   int    `json:"line,omitempty"`
	Text   string `json:"text,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Offset *int   `json:"offset,omitempty"`
	Caret  string `json:"caret,omitempty"`
}

// Server serves the HTTP API.
type Server struct {
	router     *gin.Engine
	store      mapping.Store
	unfuscator *unfuscate.Unfuscator
	watcher    WatchStatuser
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithWatcher exposes w under /v1/watch.
func WithWatcher(w WatchStatuser) Option {
	return func(s *Server) {
		s.watcher = w
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds a server resolving traces with u against store.
func New(store mapping.Store, u *unfuscate.Unfuscator, opts ...Option) *Server {
	s := &Server{
		store:      store,
		unfuscator: u,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	v1 := router.Group("/v1")
	v1.POST("/unfuscate", s.handleUnfuscate)
	v1.GET("/versions", s.handleVersions)
	v1.GET("/stats", s.handleStats)
	v1.GET("/watch", s.handleWatch)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}

// bodyError answers 413 for bodies over MaxTraceBytes and 400 otherwise.
func bodyError(c *gin.Context, what string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("%s: %v", what, err)})
}

func (s *Server) handleUnfuscate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxTraceBytes)

	var req UnfuscateRequest
	if strings.HasPrefix(c.ContentType(), "text/plain") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			bodyError(c, "reading body", err)
			return
		}
		req = UnfuscateRequest{Trace: string(body), TargetVersion: c.Query("target"), Format: c.Query("format")}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		bodyError(c, "invalid request", err)
		return
	}

	var target *version.Version
	if req.TargetVersion != "" {
		v, err := version.Parse(req.TargetVersion)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		target = v
	}

	format := req.Format
	if format == "" {
		format = "json"
	}
	writer, err := render.ByName(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	res, err := s.unfuscator.Unfuscate(c.Request.Context(), req.Trace, target)
	if err != nil {
		var lerr *unfuscate.LineError
		if errors.As(err, &lerr) {
			c.JSON(http.StatusUnprocessableEntity, lineErrorResponse(lerr))
			return
		}
		s.logger.Error("unfuscate failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := writer.Write(&buf, res, target); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	contentType := "application/octet-stream"
	if ct, ok := writer.(render.ContentTyper); ok {
		contentType = ct.ContentType()
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func lineErrorResponse(lerr *unfuscate.LineError) ErrorResponse {
	resp := ErrorResponse{Error: lerr.Error(), Line: lerr.Line, Text: lerr.Text}
	var perr *signature.ParseError
	if errors.As(lerr, &perr) {
		offset := perr.Offset
		resp.Kind = perr.Kind.String()
		resp.Offset = &offset
		resp.Caret = perr.Caret()
	}
	return resp
}

func (s *Server) handleVersions(c *gin.Context) {
	vs, err := s.store.Versions(c.Request.Context())
	if err != nil {
		s.logger.Error("listing versions failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if vs == nil {
		vs = []*version.Version{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": vs})
}

func (s *Server) handleStats(c *gin.Context) {
	sp, ok := s.store.(mapping.StatsProvider)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "store does not report statistics"})
		return
	}
	st, err := sp.Stats(c.Request.Context())
	if err != nil {
		s.logger.Error("reading stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleWatch(c *gin.Context) {
	if s.watcher == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no watcher running"})
		return
	}
	c.JSON(http.StatusOK, s.watcher.Status())
}
