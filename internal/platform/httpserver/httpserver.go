// Package httpserver constructs the process's HTTP listener. Request
// handling budgets live here, not in handlers: ingest payloads are
// small and decisions are in-memory, so anything slow is a stuck client.
package httpserver

import (
	"net/http"
	"time"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	// Audit listings can page through months of entries.
	writeTimeout = 30 * time.Second
	idleTimeout  = 2 * time.Minute
	// HRIS records and request bodies are a few KB; headers carry only a
	// bearer token.
	maxHeaderBytes = 64 << 10
)

// New builds the API server with the timeout budget above already set.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}
