package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	defaultReadTimeout       = 15 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownGrace     = 5 * time.Second
)

// Server is an http.Server bound to a validated address. Binding and
// serving are separate steps so callers can learn the real port of ":0".
type Server struct {
	http  *http.Server
	grace time.Duration

	mu       sync.Mutex
	listener net.Listener
}

type Option func(*Server)

// WithWriteTimeout must exceed the slowest request the handler may serve.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.http.WriteTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.http.ReadTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.http.IdleTimeout = d }
}

// WithShutdownGrace caps how long Shutdown waits for in-flight requests.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) { s.grace = d }
}

// New validates addr and prepares a server for handler. Nothing is bound
// until Listen or Start.
func New(addr string, handler http.Handler, opts ...Option) (*Server, error) {
	if err := validation.Validate(addr, validation.Required, validation.By(validateListenAddr)); err != nil {
		return nil, err
	}

	s := &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       defaultReadTimeout,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       defaultIdleTimeout,
		},
		grace: defaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Listen binds the configured address. Calling it twice is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Addr is the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Start binds if needed and serves until Shutdown. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()

	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests,
// at most the shutdown grace.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.grace)
	defer cancel()

	return s.http.Shutdown(ctx)
}

func validateListenAddr(value any) error {
	addr, _ := value.(string)

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return validation.NewError("validation_invalid_port", "port must be between 0 and 65535")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}
	return nil
}
