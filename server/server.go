package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	l "log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/semihalev/rendezvous/config"
	"github.com/semihalev/rendezvous/registry"
	"github.com/semihalev/zlog/v2"
	"golang.org/x/sync/errgroup"
)

// Server type
type Server struct {
	addr           string
	tlsCertificate string
	tlsPrivateKey  string

	shutdownTimeout time.Duration

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New return new server
func New(cfg *config.Config, handler http.Handler) *Server {
	shutdownTimeout := cfg.ShutdownTimeout.Duration
	if shutdownTimeout <= 0 {
		shutdownTimeout = registry.WaitTimeout + 5*time.Second
	}

	return &Server{
		addr:            cfg.Bind,
		tlsCertificate:  cfg.TLSCertificate,
		tlsPrivateKey:   cfg.TLSPrivateKey,
		shutdownTimeout: shutdownTimeout,
		handler:         handler,
		ready:           make(chan struct{}),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logReader, logWriter := io.Pipe()
	defer logWriter.Close()

	go readlogs(logReader)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// waiting parties hold the response for up to registry.WaitTimeout
		WriteTimeout: registry.WaitTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     l.New(logWriter, "", 0),
	}

	g, ctx := errgroup.WithContext(ctx)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	tlsEnabled := s.tlsCertificate != "" && s.tlsPrivateKey != ""
	if tlsEnabled {
		cm, err := NewCertManager(s.tlsCertificate, s.tlsPrivateKey)
		if err != nil {
			_ = ln.Close()
			return err
		}

		srv.TLSConfig = cm.TLSConfig()

		g.Go(func() error {
			if err := cm.Watch(ctx); err != nil {
				zlog.Error("Certificate watcher failed", "error", err.Error())
			}
			return nil
		})
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	proto := "http"
	if tlsEnabled {
		proto = "https"
	}

	zlog.Info("Rendezvous server listening...", "net", proto, "addr", ln.Addr().String())

	g.Go(func() error {
		var err error
		if tlsEnabled {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("Rendezvous server failed", "net", proto, "addr", s.addr, "error", err.Error())
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		zlog.Info("Rendezvous server stopping...", "addr", s.addr)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error("Shutdown rendezvous server failed", "error", err.Error())
			return err
		}

		return nil
	})

	return g.Wait()
}

// Addr returns the bound address once the server listens, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func readlogs(rd io.Reader) {
	buf := bufio.NewReader(rd)
	for {
		line, err := buf.ReadBytes('\n')
		if err != nil {
			return
		}

		parts := strings.SplitN(strings.TrimSuffix(string(line), "\n"), " ", 2)
		if len(parts) > 1 {
			zlog.Warn("Client http socket failed", "error", parts[1])
		} else {
			zlog.Warn("Client http socket failed", "error", parts[0])
		}
	}
}
