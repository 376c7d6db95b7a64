package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func writeKeyPair(t *testing.T, dir, cn string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func tlsConfig(certPath, keyPath string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Addr = "0"
	cfg.TLS.Enable = true
	cfg.TLS.CertPath = certPath
	cfg.TLS.KeyPath = keyPath
	return cfg
}

func TestNewHttpServerPlain(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Addr = "8080"

	srv, err := NewHttpServer(Params{Config: cfg, Handler: gin.New()})
	require.NoError(t, err)
	require.Nil(t, srv.server.TLSConfig)
	require.Equal(t, ":8080", srv.server.Addr)
}

func TestNewHttpServerMissingCert(t *testing.T) {
	dir := t.TempDir()
	_, err := NewHttpServer(Params{
		Config:  tlsConfig(filepath.Join(dir, "none.crt"), filepath.Join(dir, "none.key")),
		Handler: gin.New(),
	})
	require.Error(t, err)
}

func TestReloadCert(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeKeyPair(t, dir, "first")

	srv, err := NewHttpServer(Params{Config: tlsConfig(certPath, keyPath), Handler: gin.New()})
	require.NoError(t, err)

	first, err := srv.server.TLSConfig.GetCertificate(nil)
	require.NoError(t, err)

	writeKeyPair(t, dir, "second")
	require.NoError(t, srv.reloadCert())

	second, err := srv.server.TLSConfig.GetCertificate(nil)
	require.NoError(t, err)
	require.NotEqual(t, first.Certificate[0], second.Certificate[0])

	// a broken pair leaves the last good certificate in place
	require.NoError(t, os.WriteFile(keyPath, []byte("garbage"), 0o600))
	require.Error(t, srv.reloadCert())
	current, err := srv.server.TLSConfig.GetCertificate(nil)
	require.NoError(t, err)
	require.Equal(t, second.Certificate[0], current.Certificate[0])
}
