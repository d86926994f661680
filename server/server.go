package server

import (
	"context"
	"net/http"
	"sync"
	"time"
)

var (
	startOnce sync.Once
	startTime time.Time
)

// startedAt はプロセスで最初に呼ばれた時刻。health の uptime の基準。
func startedAt() time.Time {
	startOnce.Do(func() { startTime = time.Now() })
	return startTime
}

type Server struct {
	HTTP *http.Server
}

func NewServer(addr string, handler http.Handler) *Server {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{
		HTTP: httpServer,
	}
}

func (s *Server) Serve() error                       { return s.HTTP.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.HTTP.Shutdown(ctx) }
func (s *Server) Close() error                       { return s.HTTP.Close() }
func (s *Server) Addr() string                       { return s.HTTP.Addr }
