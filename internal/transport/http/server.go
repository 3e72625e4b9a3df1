package httptransport

import (
	"net/http"
	"time"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig leaves room in WriteTimeout for a full scheduled
// refresh, which makes several outbound calls per credential.
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:      address,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
