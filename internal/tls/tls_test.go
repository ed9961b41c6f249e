package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/agentgate/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	if cfg, err := Setup(nil); err != nil || cfg != nil {
		t.Fatalf("nil config: cfg=%v err=%v", cfg, err)
	}
	if cfg, err := Setup(&config.TLSConfig{Enabled: false}); err != nil || cfg != nil {
		t.Fatalf("disabled config: cfg=%v err=%v", cfg, err)
	}
}

func TestSetupAutoGenerate(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.TLSConfig{
		Enabled:      true,
		AutoGenerate: true,
		AutoGen: &config.AutoGenTLS{
			Dir:        dir,
			CommonName: "gateway.local",
			DNSNames:   []string{"gateway.local", "localhost"},
			ValidDays:  2,
		},
	}
	tcfg, err := Setup(cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if tcfg == nil || tcfg.GetCertificate == nil {
		t.Fatal("expected a tls.Config with a certificate loader")
	}

	cert, err := tcfg.GetCertificate(nil)
	if err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if leaf.Subject.CommonName != "gateway.local" {
		t.Fatalf("CommonName = %q", leaf.Subject.CommonName)
	}
	if time.Until(leaf.NotAfter) > 3*24*time.Hour {
		t.Fatalf("NotAfter too far out: %v", leaf.NotAfter)
	}
}

func TestSetupAutoGenerateIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.TLSConfig{
		Enabled:      true,
		AutoGenerate: true,
		AutoGen:      &config.AutoGenTLS{Dir: dir},
	}
	if _, err := Setup(cfg); err != nil {
		t.Fatalf("first Setup: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "tls.crt"))
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	if _, err := Setup(cfg); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "tls.crt"))
	if err != nil {
		t.Fatalf("read cert again: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("existing certificate was regenerated")
	}
}

func TestSetupExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	err := GenerateSelfSignedCert(CertConfig{
		CommonName:   "explicit",
		Organization: "agentgate",
		DNSNames:     []string{"localhost"},
		NotAfter:     time.Now().AddDate(0, 0, 1),
		CertPath:     certPath,
		KeyPath:      keyPath,
	})
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}

	tcfg, err := Setup(&config.TLSConfig{Enabled: true, CertFile: certPath, KeyFile: keyPath})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, err := tcfg.GetCertificate(nil); err != nil {
		t.Fatalf("GetCertificate: %v", err)
	}
}

func TestSetupEnabledWithoutCerts(t *testing.T) {
	if _, err := Setup(&config.TLSConfig{Enabled: true}); err == nil {
		t.Fatal("expected error when enabled without any certificate source")
	}
}

func TestGeneratedKeyIsPKCS8(t *testing.T) {
	dir := t.TempDir()
	err := GenerateSelfSignedCert(CertConfig{
		CommonName: "k",
		NotAfter:   time.Now().AddDate(0, 0, 1),
		CertPath:   filepath.Join(dir, "tls.crt"),
		KeyPath:    filepath.Join(dir, "tls.key"),
	})
	if err != nil {
		t.Fatalf("GenerateSelfSignedCert: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "tls.key"))
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "PRIVATE KEY" {
		t.Fatalf("unexpected PEM block: %v", block)
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err != nil {
		t.Fatalf("ParsePKCS8PrivateKey: %v", err)
	}
}
