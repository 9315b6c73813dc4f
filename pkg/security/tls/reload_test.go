package tls

import (
	"context"
	stdtls "crypto/tls"
	"crypto/x509"
	"os"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

func disabledTLS() config.TLSConfig {
	return config.TLSConfig{Enabled: false}
}

func enabledTLS(certFile, keyFile string) config.TLSConfig {
	return config.TLSConfig{
		Enabled:        true,
		CertFile:       certFile,
		KeyFile:        keyFile,
		MinVersion:     "1.2",
		ReloadInterval: time.Minute,
	}
}

func TestReloaderLoadsInitialCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCertPair(t, dir, "initial",
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewCertificateReloader(certPath, keyPath, time.Minute, testLogger())
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cert := r.GetCertificate()
	if cert == nil {
		t.Fatal("expected certificate after Start")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if leaf.Subject.CommonName != "initial" {
		t.Errorf("unexpected subject %q", leaf.Subject.CommonName)
	}
}

func TestReloaderPicksUpReplacedCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCertPair(t, dir, "first",
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))

	r := NewCertificateReloader(certPath, keyPath, time.Minute, testLogger())
	if err := r.reload(); err != nil {
		t.Fatalf("initial reload: %v", err)
	}

	// Replace the pair on disk with a later modification time.
	newCert, newKey := writeCertPair(t, dir, "second",
		time.Now().Add(-time.Hour), time.Now().Add(48*time.Hour))
	if err := os.Rename(newCert, certPath); err != nil {
		t.Fatalf("replace cert: %v", err)
	}
	if err := os.Rename(newKey, keyPath); err != nil {
		t.Fatalf("replace key: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(certPath, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if !r.needsReload() {
		t.Fatal("expected needsReload after replacing files")
	}
	if err := r.reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	leaf, err := x509.ParseCertificate(r.GetCertificate().Certificate[0])
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	if leaf.Subject.CommonName != "second" {
		t.Errorf("expected replaced certificate, got subject %q", leaf.Subject.CommonName)
	}
}

func TestReloaderKeepsServingOnBadReplacement(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCertPair(t, dir, "good",
		time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))

	r := NewCertificateReloader(certPath, keyPath, time.Minute, testLogger())
	if err := r.reload(); err != nil {
		t.Fatalf("initial reload: %v", err)
	}

	if err := os.WriteFile(certPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("corrupt cert: %v", err)
	}
	if err := r.reload(); err == nil {
		t.Fatal("expected reload error for corrupt certificate")
	}

	if r.GetCertificate() == nil {
		t.Error("expected previous certificate to remain in service")
	}
}

func TestValidateCertificateExpired(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeCertPair(t, dir, "expired",
		time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour))

	cert, err := stdtls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("load pair: %v", err)
	}
	if err := ValidateCertificate(&cert); err == nil {
		t.Error("expected error for expired certificate")
	}
}

func TestValidateCertificateNil(t *testing.T) {
	if err := ValidateCertificate(nil); err == nil {
		t.Error("expected error for nil certificate")
	}
}
