// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ShutdownTimeout bounds how long Shutdown waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// NewRouter builds the gin engine with tracing, CORS and the /api/v1 routes.
func NewRouter(serviceName string, tracker *StatusTracker) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	apiV1 := r.Group("/api/v1")
	{
		StatusRouter(apiV1, tracker)
	}
	return r
}

// StatusRouter registers the run status routes on r.
//
//   - GET /status: the RunSummary.
//   - GET /epochs?since=N: reports after epoch N (default 0).
//   - GET /epochs/:epoch: one report, 404 when not yet completed.
func StatusRouter(r *gin.RouterGroup, tracker *StatusTracker) {
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, tracker.Summary())
	})

	epochs := r.Group("/epochs")
	{
		epochs.GET("", func(c *gin.Context) {
			since, err := strconv.Atoi(c.DefaultQuery("since", "0"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer"})
				return
			}
			c.JSON(http.StatusOK, tracker.Epochs(since))
		})

		epochs.GET("/:epoch", func(c *gin.Context) {
			epoch, err := strconv.Atoi(c.Param("epoch"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "epoch must be an integer"})
				return
			}
			report, ok := tracker.Epoch(epoch)
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "epoch not found"})
				return
			}
			c.JSON(http.StatusOK, report)
		})
	}
}

// Server runs the status router in the background.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr and serves handler on a new goroutine.
func Start(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{srv: &http.Server{Handler: handler}, ln: ln}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server stopped", "error", err)
		}
	}()
	slog.Info("status server ready", "addr", ln.Addr().String())
	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting at most ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
