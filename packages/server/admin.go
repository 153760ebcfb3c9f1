package server

import (
	"context"
	"errors"
	"maps"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vogtb/sheetd/packages/cell"
	"github.com/vogtb/sheetd/packages/formula"
	"github.com/vogtb/sheetd/packages/logging"
	"github.com/vogtb/sheetd/packages/transport"
)

// flushTimeout bounds how long POST /v1/flush waits for the queue
const flushTimeout = 30 * time.Second

// Engine is what the admin surface needs from the engine
type Engine interface {
	Get(name string) (string, cell.Value, error)
	Snapshot() map[string]cell.Value
	Flush(ctx context.Context) error
}

// CellResponse is the JSON body of GET /v1/cells/:name
type CellResponse struct {
	Cell    string `json:"cell"`
	Kind    string `json:"kind"`
	Value   any    `json:"value"`
	Display string `json:"display"`
}

// NewRouter builds the admin routes. ws may be nil, in which case there is
// no /ws route.
func NewRouter(eng Engine, ws *transport.WSListener, logger *logging.Logger) *gin.Engine {
	if logger == nil {
		logger = logging.Nop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/healthz", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/cells", ListCells(eng))
		v1.GET("/cells/:name", GetCell(eng))
		v1.GET("/functions", ListFunctions(formula.NewDefaultBuiltInFunctions()))
		v1.POST("/flush", Flush(eng))
	}

	if ws != nil {
		router.GET("/ws", ws.Handler())
	}
	return router
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetCell returns the committed value of one cell
func GetCell(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, value, err := eng.Get(c.Param("name"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, newCellResponse(name, value))
	}
}

func newCellResponse(name string, value cell.Value) CellResponse {
	return CellResponse{
		Cell:    name,
		Kind:    value.Kind.String(),
		Value:   value.Raw(),
		Display: value.String(),
	}
}

// ListCells returns every non-empty cell, ordered by name
func ListCells(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := eng.Snapshot()
		cells := make([]CellResponse, 0, len(snapshot))
		for _, name := range slices.Sorted(maps.Keys(snapshot)) {
			cells = append(cells, newCellResponse(name, snapshot[name]))
		}
		c.JSON(http.StatusOK, gin.H{"cells": cells, "count": len(cells)})
	}
}

func ListFunctions(functions *formula.BuiltInFunctions) gin.HandlerFunc {
	names := functions.Names()
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"functions": names})
	}
}

// Flush waits until every change queued so far has been propagated
func Flush(eng Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), flushTimeout)
		defer cancel()

		if err := eng.Flush(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "flushed"})
	}
}

// RequestLogger logs every request at debug level
func RequestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("admin request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// ServeAdmin serves handler on ln until ctx is cancelled, then shuts the
// server down gracefully
func ServeAdmin(ctx context.Context, ln net.Listener, handler http.Handler, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("admin server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
