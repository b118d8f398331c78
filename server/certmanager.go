package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/semihalev/zlog/v2"
)

// CertManager serves a TLS key pair from disk and reloads it when the files change.
type CertManager struct {
	certPath string
	keyPath  string

	certificate atomic.Pointer[tls.Certificate]

	mu          sync.Mutex
	lastModTime time.Time
}

var errNoCertificate = errors.New("no certificate available")

// NewCertManager loads the key pair once, call Watch to follow changes.
func NewCertManager(certPath, keyPath string) (*CertManager, error) {
	cm := &CertManager{
		certPath: certPath,
		keyPath:  keyPath,
	}

	if err := cm.Reload(); err != nil {
		return nil, fmt.Errorf("failed to load initial certificate: %w", err)
	}

	return cm, nil
}

// Reload reads the key pair from disk.
func (cm *CertManager) Reload() error {
	cert, err := tls.LoadX509KeyPair(cm.certPath, cm.keyPath)
	if err != nil {
		return err
	}

	info, err := os.Stat(cm.certPath)
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.lastModTime = info.ModTime()
	cm.mu.Unlock()

	cm.certificate.Store(&cert)

	zlog.Info("TLS certificate loaded", "cert", cm.certPath, "modTime", info.ModTime())

	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (cm *CertManager) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := cm.certificate.Load()
	if cert == nil {
		return nil, errNoCertificate
	}

	return cert, nil
}

// TLSConfig returns a new config that always serves the current certificate.
func (cm *CertManager) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: cm.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Watch follows changes of the key pair until ctx is done.
func (cm *CertManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// directories, not files: renewals usually swap symlinks
	dirs := map[string]struct{}{
		filepath.Dir(cm.certPath): {},
		filepath.Dir(cm.keyPath):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch certificate directory: %w", err)
		}
	}

	// fsnotify can miss events on some filesystems
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if cm.relevant(event) {
				zlog.Debug("Certificate file event", "event", event.String())
				cm.checkAndReload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Error("Certificate watcher error", "error", err.Error())

		case <-ticker.C:
			cm.checkAndReload()
		}
	}
}

func (cm *CertManager) relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)

	return name == filepath.Base(cm.certPath) || name == filepath.Base(cm.keyPath)
}

func (cm *CertManager) checkAndReload() {
	info, err := os.Stat(cm.certPath)
	if err != nil {
		zlog.Error("Failed to stat certificate file", "path", cm.certPath, "error", err.Error())
		return
	}

	cm.mu.Lock()
	changed := info.ModTime().After(cm.lastModTime)
	cm.mu.Unlock()

	if !changed {
		return
	}

	zlog.Info("Certificate file changed, reloading", "path", cm.certPath)

	if err := cm.Reload(); err != nil {
		// keep serving the previous pair, the key may not be written yet
		zlog.Error("Failed to reload certificate", "error", err.Error())
	}
}

const checkInterval = 5 * time.Minute
