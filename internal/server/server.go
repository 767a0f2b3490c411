// Package server implements the HTTP catalog API
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aimmlab/xascat/internal/logger"
	"github.com/aimmlab/xascat/internal/metrics"
	"github.com/aimmlab/xascat/pkg/access"
	"github.com/aimmlab/xascat/pkg/blob"
	"github.com/aimmlab/xascat/pkg/catalog"
	"github.com/aimmlab/xascat/pkg/payload"
	"github.com/aimmlab/xascat/pkg/query"
	"github.com/aimmlab/xascat/pkg/schema"
)

// Options wires the server to its collaborators.
type Options struct {
	Addr       string
	Root       *catalog.Node
	Blobs      *blob.Store
	Queries    *query.Registry
	Principals map[string]access.Principal
	Log        *logger.Logger
	Metrics    *metrics.Metrics
}

// Server serves the catalog over HTTP.
type Server struct {
	root       *catalog.Node
	blobs      *blob.Store
	queries    *query.Registry
	principals map[string]access.Principal
	log        *logger.Logger
	metrics    *metrics.Metrics

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the server and its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		root:       opts.Root,
		blobs:      opts.Blobs,
		queries:    opts.Queries,
		principals: opts.Principals,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
	if s.queries == nil {
		s.queries = query.NewRegistry()
	}
	if s.log == nil {
		s.log = logger.GetGlobalLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if s.metrics != nil {
		engine.Use(MetricsMiddleware(s.metrics, s.log))
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	api.Use(s.authenticate)
	{
		api.GET("/node/*path", s.handleNode)
		api.DELETE("/node/*path", s.handleDeleteRecord)
		api.POST("/search/*path", s.handleSearch)
		api.POST("/metadata", s.handlePostMetadata)
		api.PUT("/data/:uid", s.handlePutData)
		api.GET("/data/:uid", s.handleGetData)
		api.POST("/samples", s.handlePostSample)
		api.GET("/samples", s.handleListSamples)
		api.GET("/samples/:uid", s.handleGetSample)
		api.DELETE("/samples/:uid", s.handleDeleteSample)
	}

	s.engine = engine
	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.LogServerReady(s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.LogServerShutdown()
	return s.http.Shutdown(ctx)
}

// authenticate resolves the caller's API key into a principal. Requests
// without a key proceed as anonymous; unknown keys are rejected.
func (s *Server) authenticate(c *gin.Context) {
	key := c.GetHeader("X-Api-Key")
	if key == "" {
		c.Set("principal", access.Principal{})
		return
	}
	p, ok := s.principals[key]
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown api key"})
		return
	}
	c.Set("principal", p)
}

func (s *Server) node(c *gin.Context) *catalog.Node {
	p, _ := c.Get("principal")
	return s.root.AuthenticatedAs(p.(access.Principal))
}

func splitPath(raw string) []string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", catalog.ErrBadRequest, name)
	}
	return v, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "xascat"})
}

func (s *Server) handleNode(c *gin.Context) {
	s.describeNode(c, s.node(c).AtPath(splitPath(c.Param("path"))...))
}

// describeNode renders a node: records resolve to their document, and
// containers to a key listing with a count and the metadata the bound
// path segments pin down.
func (s *Server) describeNode(c *gin.Context, node *catalog.Node) {
	ctx := c.Request.Context()

	op, err := node.Operation()
	if err != nil {
		s.handleError(c, err)
		return
	}

	if _, ok := op.(catalog.Lookup); ok {
		if s.metrics != nil {
			s.metrics.LookupsTotal.Inc()
		}
		r, err := node.Record(ctx)
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"type": "record", "record": r})
		return
	}

	skip, err := intQuery(c, "skip", 0)
	if err != nil {
		s.handleError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", -1)
	if err != nil {
		s.handleError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.EnumerationsTotal.Inc()
	}

	md, err := node.Metadata(ctx)
	if err != nil {
		s.handleError(c, err)
		return
	}

	if c.Query("full") == "true" {
		records, err := node.Records(ctx, skip, limit)
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"type": "records", "records": records, "count": len(records), "metadata": md})
		return
	}

	count, err := node.Len(ctx)
	if err != nil {
		s.handleError(c, err)
		return
	}
	keys, err := node.Keys(ctx, skip, limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"type": "container", "path": node.Path(), "keys": keys, "count": count, "metadata": md})
}

type searchRequest struct {
	Queries []struct {
		Kind  string          `json:"kind"`
		Query json.RawMessage `json:"query"`
	} `json:"queries"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed search body"})
		return
	}

	node := s.node(c).AtPath(splitPath(c.Param("path"))...)
	for _, q := range req.Queries {
		parsed, err := s.queries.Decode(q.Kind, q.Query)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		node, err = node.Search(parsed)
		if err != nil {
			s.handleError(c, err)
			return
		}
	}

	if s.metrics != nil {
		s.metrics.SearchQueriesTotal.Inc()
	}
	s.describeNode(c, node)
}

func (s *Server) handlePostMetadata(c *gin.Context) {
	var r schema.Record
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed record"})
		return
	}

	id, err := s.node(c).PostMetadata(c.Request.Context(), &r)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsCreatedTotal.Inc()
	}
	c.JSON(http.StatusCreated, gin.H{"uid": id})
}

func (s *Server) handlePutData(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.node(c).PutData(c.Request.Context(), c.Param("uid"), data); err != nil {
		s.handleError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.PayloadsAttachedTotal.Inc()
		s.metrics.PayloadBytesWritten.Add(float64(len(data)))
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid")})
}

func (s *Server) handleGetData(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("uid")

	r, err := s.node(c).AtPath("uid", id).Record(ctx)
	if err != nil {
		s.handleError(c, err)
		return
	}
	p, err := payload.Open(r, s.blobs)
	if err != nil {
		s.handleError(c, err)
		return
	}

	var data []byte
	if c.Query("offset") != "" || c.Query("length") != "" {
		offset, err := intQuery(c, "offset", 0)
		if err != nil {
			s.handleError(c, err)
			return
		}
		length, err := intQuery(c, "length", 0)
		if err != nil {
			s.handleError(c, err)
			return
		}
		data, err = p.ReadRange(int64(offset), int64(length))
		if err != nil {
			s.handleError(c, err)
			return
		}
	} else {
		data, err = p.Read()
		if err != nil {
			s.handleError(c, err)
			return
		}
	}

	if s.metrics != nil {
		s.metrics.PayloadBytesRead.Add(float64(len(data)))
	}
	mimetype := p.Mimetype()
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	c.Data(http.StatusOK, mimetype, data)
}

func (s *Server) handleDeleteRecord(c *gin.Context) {
	segments := splitPath(c.Param("path"))
	if len(segments) != 2 || segments[0] != "uid" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "records are deleted at /node/uid/{uid}"})
		return
	}

	if err := s.node(c).DeleteRecord(c.Request.Context(), segments[1]); err != nil {
		s.handleError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordsDeletedTotal.Inc()
	}
	c.JSON(http.StatusOK, gin.H{"uid": segments[1]})
}

func (s *Server) handlePostSample(c *gin.Context) {
	var sample schema.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed sample"})
		return
	}

	id, err := s.node(c).PostSample(c.Request.Context(), &sample)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"uid": id})
}

func (s *Server) handleListSamples(c *gin.Context) {
	skip, err := intQuery(c, "skip", 0)
	if err != nil {
		s.handleError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", -1)
	if err != nil {
		s.handleError(c, err)
		return
	}

	samples, err := s.node(c).Samples(c.Request.Context(), skip, limit)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples, "count": len(samples)})
}

func (s *Server) handleGetSample(c *gin.Context) {
	sample, err := s.node(c).Sample(c.Request.Context(), c.Param("uid"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sample": sample})
}

func (s *Server) handleDeleteSample(c *gin.Context) {
	if err := s.node(c).DeleteSample(c.Request.Context(), c.Param("uid")); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": c.Param("uid")})
}

// handleError maps catalog errors onto HTTP statuses.
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, blob.ErrNotFound), errors.Is(err, payload.ErrNotActive):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.log.HTTPLogger(c.FullPath()).Error("request failed").Err(err).Str("path", c.Request.URL.Path).Send()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
