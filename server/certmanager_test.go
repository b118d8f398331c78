package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertManager(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "test.crt")
	keyPath := filepath.Join(tmpDir, "test.key")

	cert1, key1 := generateTestCert(t, "test1.example.com")
	writeCertAndKey(t, certPath, keyPath, cert1, key1)

	cm, err := NewCertManager(certPath, keyPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cm.Watch(ctx) }()

	tlsConfig := cm.TLSConfig()
	require.NotNil(t, tlsConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)

	assert.Equal(t, "test1.example.com", commonName(t, cm))

	// let the watcher register before files change
	time.Sleep(50 * time.Millisecond)

	cert2, key2 := generateTestCert(t, "test2.example.com")
	writeCertAndKey(t, certPath, keyPath, cert2, key2)

	assert.Eventually(t, func() bool {
		return commonName(t, cm) == "test2.example.com"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCertManagerReload(t *testing.T) {
	tmpDir := t.TempDir()
	certPath := filepath.Join(tmpDir, "test.crt")
	keyPath := filepath.Join(tmpDir, "test.key")

	cert1, key1 := generateTestCert(t, "reload1.example.com")
	writeCertAndKey(t, certPath, keyPath, cert1, key1)

	cm, err := NewCertManager(certPath, keyPath)
	require.NoError(t, err)

	cert2, key2 := generateTestCert(t, "reload2.example.com")
	writeCertAndKey(t, certPath, keyPath, cert2, key2)

	require.NoError(t, cm.Reload())
	assert.Equal(t, "reload2.example.com", commonName(t, cm))

	// a broken pair keeps the previous certificate
	require.NoError(t, os.WriteFile(keyPath, []byte("broken"), 0o600))
	assert.Error(t, cm.Reload())
	assert.Equal(t, "reload2.example.com", commonName(t, cm))
}

func TestCertManagerMissingFiles(t *testing.T) {
	_, err := NewCertManager("/nonexistent/cert.pem", "/nonexistent/key.pem")
	assert.Error(t, err)

	var cm CertManager
	_, err = cm.GetCertificate(&tls.ClientHelloInfo{})
	assert.ErrorIs(t, err, errNoCertificate)
}

func commonName(t *testing.T, cm *CertManager) string {
	t.Helper()

	cert, err := cm.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	require.NotNil(t, cert)

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	return x509Cert.Subject.CommonName
}

func generateTestCert(t *testing.T, commonName string) ([]byte, []byte) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName: commonName,
		},
		DNSNames:              []string{commonName},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM
}

func writeCertAndKey(t *testing.T, certPath, keyPath string, cert, key []byte) {
	t.Helper()

	require.NoError(t, os.WriteFile(certPath, cert, 0o644))
	require.NoError(t, os.WriteFile(keyPath, key, 0o600))
}
