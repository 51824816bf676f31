package httpapi

import (
	"net/http"
	"time"

	"khamriver-server/internal/config"
)

func NewServer(cfg config.Config, mux *http.ServeMux, metrics *Metrics) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           requestLogger(metrics, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
