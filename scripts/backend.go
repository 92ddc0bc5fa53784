//go:build ignore

// Backend is a mock AI content provider for local orchestrator testing.
// It answers POST /generate with a JSON reply shaped like a chat completion
// and can be switched into failure modes at runtime.
//
// Usage:
//
//	go run backend.go -id claude -port 8081 -latency 200ms -jitter 100ms
//	curl -X POST 'localhost:8081/admin/mode?mode=fail'
//
// Modes: ok (default), fail (HTTP 502), hang (never replies until the
// caller gives up), slow (latency multiplied by ten).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

type mode string

const (
	modeOK   mode = "ok"
	modeFail mode = "fail"
	modeHang mode = "hang"
	modeSlow mode = "slow"
)

type choice struct {
	Text string `json:"text"`
}

type completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

func main() {
	var (
		id       = flag.String("id", "mock", "backend id reported in replies")
		port     = flag.Int("port", 8081, "port to listen on")
		latency  = flag.Duration("latency", 100*time.Millisecond, "base reply latency")
		jitter   = flag.Duration("jitter", 50*time.Millisecond, "random extra latency")
		failRate = flag.Float64("fail-rate", 0, "fraction of requests answered with 502 in ok mode")
	)
	flag.Parse()

	log := slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.TimeOnly})).
		With(slog.String("backend", *id))

	var current atomic.Value
	current.Store(modeOK)
	var served atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		capability := r.Header.Get("X-Capability")
		m := current.Load().(mode)
		log.Info("request",
			slog.String("capability", capability),
			slog.String("mode", string(m)),
			slog.Int("bytes", len(body)))

		switch m {
		case modeFail:
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		case modeHang:
			<-r.Context().Done()
			return
		}

		delay := *latency
		if *jitter > 0 {
			delay += rand.N(*jitter)
		}
		if m == modeSlow {
			delay *= 10
		}
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		if *failRate > 0 && rand.Float64() < *failRate {
			http.Error(w, "random failure", http.StatusBadGateway)
			return
		}

		n := served.Add(1)
		reply := completion{
			ID:    uuid.NewString(),
			Model: *id,
			Choices: []choice{{
				Text: fmt.Sprintf("[%s #%d] generated %s content", *id, n, capability),
			}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	})

	mux.HandleFunc("POST /admin/mode", func(w http.ResponseWriter, r *http.Request) {
		m := mode(r.URL.Query().Get("mode"))
		switch m {
		case modeOK, modeFail, modeHang, modeSlow:
		default:
			http.Error(w, "mode must be ok, fail, hang or slow", http.StatusBadRequest)
			return
		}
		current.Store(m)
		log.Warn("mode changed", slog.String("mode", string(m)))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting mock backend", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
