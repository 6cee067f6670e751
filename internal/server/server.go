/*
 * MIT License
 *
 * Copyright (c) 2026 Nguyen Thanh Phuong
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package server is the embedded HTTP server. Handlers receive a
// RequestInfo and return the response body; the server owns routing,
// compression, logging and TLS.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
)

// Content types used by the built-in handlers.
const (
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeJSON = "application/json"
)

// shutdownTimeout bounds graceful shutdown of open connections.
var shutdownTimeout = 5 * time.Second

// RequestInfo is the part of a request handlers may look at.
type RequestInfo struct {
	Method      string
	Path        string
	RequestURI  string
	QueryString string
	Host        string
	RemoteAddr  string
	URL         *url.URL
	HTTPS       bool
	Vars        map[string]string // path variables of the matched route
}

// Query returns the parsed query string.
func (r RequestInfo) Query() url.Values {
	if r.URL == nil {
		return url.Values{}
	}
	return r.URL.Query()
}

// HandlerFunc produces a response body. A returned error becomes a 500.
type HandlerFunc func(RequestInfo) (string, error)

// Server represents the embedded web server.
type Server struct {
	logger *slog.Logger
	router *mux.Router
	chain  http.Handler
	http   *http.Server
}

// New creates a server with no routes.
func New(logger *slog.Logger) *Server {
	s := &Server{
		logger: logger,
		router: mux.NewRouter().StrictSlash(true),
	}
	s.router.Use(s.loggingMiddleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("HTTP path not found", "path", r.URL.Path)
		http.Error(w, "404 Not Found", http.StatusNotFound)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.chain = c.Handler(gzhttp.GzipHandler(s.router))
	return s
}

// RegisterHandler serves fn at path for GET and HEAD requests.
func (s *Server) RegisterHandler(path, contentType string, fn HandlerFunc) {
	s.router.Handle(path, s.adapt(contentType, fn)).Methods(http.MethodGet, http.MethodHead)
}

// Handle mounts a plain http.Handler at path.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h)
}

func (s *Server) adapt(contentType string, fn HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := RequestInfo{
			Method:      r.Method,
			Path:        r.URL.Path,
			RequestURI:  r.RequestURI,
			QueryString: r.URL.RawQuery,
			Host:        r.Host,
			RemoteAddr:  r.RemoteAddr,
			URL:         r.URL,
			HTTPS:       r.TLS != nil,
			Vars:        mux.Vars(r),
		}

		body, err := fn(info)
		if err != nil {
			s.logger.Error("Handler failed", "path", info.Path, "error", err)
			http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		if _, err := w.Write([]byte(body)); err != nil {
			s.logger.Debug("Failed to write response", "path", info.Path, "error", err)
		}
	})
}

// ServeHTTP implements http.Handler. Requests pass through CORS and
// gzip before reaching the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.chain.ServeHTTP(w, r)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled. TLS is used when
// both certFile and keyFile are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.chain,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			s.logger.Info("Webserver listening", "address", addr, "tls", true)
			err = s.http.ListenAndServeTLS(certFile, keyFile)
		} else {
			s.logger.Info("Webserver listening", "address", addr, "tls", false)
			err = s.http.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webserver failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Webserver stopping...")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webserver shutdown: %w", err)
	}
	return nil
}
