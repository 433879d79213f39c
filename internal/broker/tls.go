package broker

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"mqtt-rpc/config"
)

// Secure-connection configuration errors. Use errors.Is to tell them apart.
var (
	ErrMissingKeyStoreType       = errors.New("tls: key store type is missing")
	ErrUnsupportedKeyStoreType   = errors.New("tls: unsupported key store type")
	ErrMissingKeyStore           = errors.New("tls: key store resource is missing")
	ErrMissingTrustStore         = errors.New("tls: trust store resource is missing")
	ErrUnreadableKeyStore        = errors.New("tls: key store cannot be read")
	ErrUnreadableTrustStore      = errors.New("tls: trust store cannot be read")
	ErrMissingKeyStorePassword   = errors.New("tls: key store password is missing")
	ErrMissingTrustStorePassword = errors.New("tls: trust store password is missing")
)

const (
	KeyStoreTypePEM    = "pem"
	KeyStoreTypePKCS12 = "pkcs12"
)

// NewTLSConfig loads the client certificate and trusted CAs described by cfg
func NewTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	storeType := strings.ToLower(strings.TrimSpace(cfg.KeyStoreType))
	switch storeType {
	case "":
		return nil, ErrMissingKeyStoreType
	case KeyStoreTypePEM, KeyStoreTypePKCS12, "p12":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKeyStoreType, cfg.KeyStoreType)
	}

	if cfg.KeyStore == "" {
		return nil, ErrMissingKeyStore
	}
	if cfg.TrustStore == "" {
		return nil, ErrMissingTrustStore
	}

	var (
		cert  tls.Certificate
		roots *x509.CertPool
		err   error
	)
	if storeType == KeyStoreTypePEM {
		cert, roots, err = loadPEMStores(cfg)
	} else {
		cert, roots, err = loadPKCS12Stores(cfg)
	}
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// loadPEMStores reads a PEM bundle holding certificate and key plus a CA bundle
func loadPEMStores(cfg config.TLSConfig) (tls.Certificate, *x509.CertPool, error) {
	keyData, err := os.ReadFile(cfg.KeyStore)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableKeyStore, err)
	}

	cert, err := tls.X509KeyPair(keyData, keyData)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableKeyStore, err)
	}

	caData, err := os.ReadFile(cfg.TrustStore)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableTrustStore, err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caData) {
		return tls.Certificate{}, nil, fmt.Errorf("%w: no certificates found in %s", ErrUnreadableTrustStore, cfg.TrustStore)
	}

	return cert, roots, nil
}

// loadPKCS12Stores reads password protected PKCS#12 key and trust stores
func loadPKCS12Stores(cfg config.TLSConfig) (tls.Certificate, *x509.CertPool, error) {
	if cfg.KeyStorePassword == "" {
		return tls.Certificate{}, nil, ErrMissingKeyStorePassword
	}
	if cfg.TrustStorePassword == "" {
		return tls.Certificate{}, nil, ErrMissingTrustStorePassword
	}

	keyData, err := os.ReadFile(cfg.KeyStore)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableKeyStore, err)
	}

	key, leaf, err := pkcs12.Decode(keyData, cfg.KeyStorePassword)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableKeyStore, err)
	}

	trustData, err := os.ReadFile(cfg.TrustStore)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableTrustStore, err)
	}

	blocks, err := pkcs12.ToPEM(trustData, cfg.TrustStorePassword)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableTrustStore, err)
	}

	roots := x509.NewCertPool()
	for _, block := range blocks {
		if block.Type != "CERTIFICATE" {
			continue
		}
		ca, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return tls.Certificate{}, nil, fmt.Errorf("%w: %w", ErrUnreadableTrustStore, err)
		}
		roots.AddCert(ca)
	}

	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, roots, nil
}
