package server

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/semihalev/rendezvous/api"
	"github.com/semihalev/rendezvous/config"
	"github.com/semihalev/rendezvous/metrics"
	"github.com/semihalev/rendezvous/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, s *Server) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server failed: %v", err)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server not ready")
	}

	return cancel, done
}

func stop(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestServerHTTP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	s := New(&config.Config{Bind: "127.0.0.1:0"}, handler)
	assert.Nil(t, s.Addr())
	assert.Equal(t, registry.WaitTimeout+5*time.Second, s.shutdownTimeout)

	cancel, done := start(t, s)
	require.NotNil(t, s.Addr())

	assert.Equal(t, "ok", get(t, http.DefaultClient, "http://"+s.Addr().String()+"/"))

	stop(t, cancel, done)
}

func TestServerRendezvous(t *testing.T) {
	cfg := &config.Config{
		Bind:            "127.0.0.1:0",
		AccessList:      []string{"127.0.0.0/8"},
		ShutdownTimeout: config.Duration{Duration: time.Second},
	}

	m := metrics.New(prometheus.NewRegistry())
	reg := registry.New(registry.WithObserver(m))
	m.Bind(reg.Len)

	s := New(cfg, api.New(cfg, reg, m))
	cancel, done := start(t, s)

	url := "http://" + s.Addr().String() + "/wait-for-second-party/meet"

	replies := make([]string, 2)

	var wg sync.WaitGroup
	for i := range replies {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := http.Post(url, "text/plain", nil)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			replies[i] = string(body)
		}()
	}

	wg.Wait()

	assert.Equal(t, []string{api.PairedReply, api.PairedReply}, replies)
	assert.Equal(t, 0, reg.Len())

	stop(t, cancel, done)
}

func TestServerTLS(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "cert.pem")
	keyPath := filepath.Join(tmpDir, "key.pem")

	cert, key := generateTestCert(t, "rendezvous.example.com")
	writeCertAndKey(t, certPath, keyPath, cert, key)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "secure")
	})

	s := New(&config.Config{
		Bind:           "127.0.0.1:0",
		TLSCertificate: certPath,
		TLSPrivateKey:  keyPath,
	}, handler)

	cancel, done := start(t, s)

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}

	assert.Equal(t, "secure", get(t, client, "https://"+s.Addr().String()+"/"))

	stop(t, cancel, done)
}

func TestServerBadCertificate(t *testing.T) {
	s := New(&config.Config{
		Bind:           "127.0.0.1:0",
		TLSCertificate: "/nonexistent/cert.pem",
		TLSPrivateKey:  "/nonexistent/key.pem",
	}, http.NotFoundHandler())

	err := s.Run(context.Background())
	assert.Error(t, err)
}

func TestServerBindError(t *testing.T) {
	s := New(&config.Config{Bind: "127.0.0.1:-1"}, http.NotFoundHandler())

	err := s.Run(context.Background())
	assert.Error(t, err)
}
