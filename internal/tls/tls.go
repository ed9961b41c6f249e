package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/agentgate/internal/config"
)

const (
	tlsCrt = "tls.crt"
	tlsKey = "tls.key"
)

// Setup builds a *tls.Config for the gateway listener. It returns (nil, nil)
// when TLS is disabled. Explicit cert/key files take priority; otherwise
// self-signed certificates are generated into the auto_gen directory when
// auto_generate is set and no certificates exist yet.
func Setup(cfg *config.TLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		return createTLSConfig(cfg.CertFile, cfg.KeyFile)
	}

	if cfg.AutoGen != nil && cfg.AutoGen.Dir != "" {
		certPath := filepath.Join(cfg.AutoGen.Dir, tlsCrt)
		keyPath := filepath.Join(cfg.AutoGen.Dir, tlsKey)

		if cfg.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := generateCertificate(cfg.AutoGen); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}

		return createTLSConfig(certPath, keyPath)
	}

	return nil, errors.New("TLS enabled but no valid certificate configuration found")
}

// safeReadFile reads file content safely within base directory
func safeReadFile(baseDir, p string) ([]byte, error) {
	clean := filepath.Clean(p)
	if baseDir != "" {
		absBase, _ := filepath.Abs(baseDir)
		absFile, _ := filepath.Abs(clean)
		if !strings.HasPrefix(absFile, absBase+string(filepath.Separator)) && absFile != absBase {
			return nil, errors.New("file path outside of allowed directory")
		}
	}
	return os.ReadFile(clean)
}

// getCertificationFunc returns a function that loads certificates dynamically,
// so renewed certificates are picked up without a restart.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	baseDir := filepath.Dir(certFile)
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		readCert, err := safeReadFile(baseDir, certFile)
		if err != nil {
			return nil, err
		}
		readKey, err := safeReadFile(baseDir, keyFile)
		if err != nil {
			return nil, err
		}
		certificate, err := tls.X509KeyPair(readCert, readKey)
		return &certificate, err
	}
}

func createTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     tls.VersionTLS12,
	}, nil
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func getOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func getOrDefaultSlice(value, defaultValue []string) []string {
	if len(value) == 0 {
		return defaultValue
	}
	return value
}

func generateCertificate(autoGen *config.AutoGenTLS) error {
	if err := os.MkdirAll(autoGen.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	commonName := getOrDefault(autoGen.CommonName, "localhost")
	dnsNames := getOrDefaultSlice(autoGen.DNSNames, []string{"localhost"})

	validDays := autoGen.ValidDays
	if validDays <= 0 {
		validDays = 365
	}
	notAfter := time.Now().AddDate(0, 0, validDays)

	return GenerateSelfSignedCert(CertConfig{
		CommonName:   commonName,
		Organization: "agentgate",
		DNSNames:     dnsNames,
		IPAddresses:  []string{"127.0.0.1"},
		NotAfter:     notAfter,
		CertPath:     filepath.Join(autoGen.Dir, tlsCrt),
		KeyPath:      filepath.Join(autoGen.Dir, tlsKey),
	})
}
