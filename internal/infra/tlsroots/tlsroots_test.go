package tlsroots

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self-signed cert for 127.0.0.1 and returns its paths.
func writeCert(t *testing.T, dir string, serial int64) (certFile, keyFile string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "tokgate-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serial(t *testing.T, w *CertWatcher) int64 {
	t.Helper()
	c, _ := w.GetCertificate(nil)
	leaf, err := x509.ParseCertificate(c.Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	return leaf.SerialNumber.Int64()
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writeCert(t, dir, 1)

	cfg, err := ClientConfig(certFile)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MinVersion != tls.VersionTLS12 || cfg.RootCAs == nil {
		t.Fatalf("config = %+v", cfg)
	}

	if _, err := ClientConfig(""); err != nil {
		t.Fatalf("system roots only: %v", err)
	}
	if _, err := ClientConfig(filepath.Join(dir, "missing.pem")); err == nil {
		t.Fatal("expected error for missing file")
	}

	junk := filepath.Join(dir, "junk.pem")
	os.WriteFile(junk, []byte("not a pem"), 0o600)
	if _, err := ClientConfig(junk); !errors.Is(err, ErrNoCertsFound) {
		t.Fatalf("junk file err = %v, want ErrNoCertsFound", err)
	}
}

func TestCertWatcher_ServesTLS(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, 1)

	w, err := NewCertWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", w.ServerConfig())
	if err != nil {
		t.Fatal(err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		io.WriteString(rw, "ok")
	})}
	go srv.Serve(ln)
	defer srv.Close()

	clientTLS, err := ClientConfig(certFile)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientTLS}, Timeout: 5 * time.Second}
	resp, err := client.Get("https://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("https request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
}

func TestCertWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, 1)

	w, err := NewCertWatcher(certFile, keyFile, WithLogger(quietLogger()), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if got := serial(t, w); got != 1 {
		t.Fatalf("initial serial = %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeCert(t, dir, 2)

	deadline := time.Now().Add(5 * time.Second)
	for serial(t, w) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("certificate was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCertWatcher_BadReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeCert(t, dir, 7)
	w, err := NewCertWatcher(certFile, keyFile, WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(certFile, []byte("garbage"), 0o600)
	if err := w.reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := serial(t, w); got != 7 {
		t.Errorf("serial after failed reload = %d, want 7", got)
	}
}

func TestNewCertWatcher_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewCertWatcher(filepath.Join(dir, "a.crt"), filepath.Join(dir, "a.key")); err == nil {
		t.Fatal("expected error for missing key pair")
	}
}
