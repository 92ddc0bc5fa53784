package main

import (
	"net/http"
)

type routes struct {
	generate http.Handler
	health   http.HandlerFunc
	stats    http.HandlerFunc
	metrics  http.Handler
}

func setupRouter(r routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/v1/generate", r.generate)
	mux.HandleFunc("GET /health", r.health)
	mux.HandleFunc("GET /stats", r.stats)
	mux.Handle("GET /metrics", r.metrics)

	return mux
}
