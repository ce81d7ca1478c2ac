// Package httptransport assembles the API's http.Server.
package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig holds the server tunables. WriteTimeout must cover a full
// Garmin round trip: workout refresh and import handlers call out to the
// remote service before responding.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer builds an *http.Server around the supplied handler chain.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
