package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateAndLoad(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	created, err := EnsureCert(certFile, keyFile, "portal.local", "10.0.0.5", "api.portal.local")
	if err != nil {
		t.Fatalf("EnsureCert failed: %v", err)
	}
	if !created {
		t.Fatal("expected a new certificate")
	}

	data, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		t.Fatal("certificate is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	if err := cert.VerifyHostname("api.portal.local"); err != nil {
		t.Errorf("hostname SAN missing: %v", err)
	}
	if err := cert.VerifyHostname("10.0.0.5"); err != nil {
		t.Errorf("IP SAN missing: %v", err)
	}

	info, err := os.Stat(keyFile)
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %v, want 0600", info.Mode().Perm())
	}

	created, err = EnsureCert(certFile, keyFile, "portal.local")
	if err != nil || created {
		t.Fatalf("second EnsureCert = %v, %v; want false, nil", created, err)
	}

	cfg, err := LoadServerConfig(certFile, keyFile)
	if err != nil {
		t.Fatalf("LoadServerConfig failed: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(cfg.Certificates))
	}

	client, err := LoadClientConfig(certFile, false)
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}
	if client.RootCAs == nil {
		t.Error("expected RootCAs from CA file")
	}
}

func TestLoadClientConfigBadCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadClientConfig(path, false); err == nil {
		t.Fatal("expected error for invalid CA file")
	}
}
