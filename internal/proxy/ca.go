package proxy

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

const (
	caKeyBits    = 2048
	caValidYears = 2
	caSerialLen  = 128
)

// CertificateAuthority is a PEM-encoded certificate and private key. The
// proxy uses it to intercept TLS; the sandbox trusts the certificate.
type CertificateAuthority struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

var caSubject = pkix.Name{
	CommonName:         "Dependabot Internal CA",
	Organization:       []string{"GitHub Inc."},
	OrganizationalUnit: []string{"Dependabot"},
	Country:            []string{"US"},
	Province:           []string{"California"},
	Locality:           []string{"San Francisco"},
}

// GenerateCA creates a fresh self-signed CA. Every call yields a new key pair.
func GenerateCA() (CertificateAuthority, error) {
	return generateCA(time.Now())
}

func generateCA(now time.Time) (CertificateAuthority, error) {
	key, err := rsa.GenerateKey(rand.Reader, caKeyBits)
	if err != nil {
		return CertificateAuthority{}, fmt.Errorf("generate CA key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), caSerialLen))
	if err != nil {
		return CertificateAuthority{}, fmt.Errorf("generate CA serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               caSubject,
		Issuer:                caSubject,
		NotBefore:             now,
		NotAfter:              now.AddDate(caValidYears, 0, 0),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return CertificateAuthority{}, fmt.Errorf("sign CA certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return CertificateAuthority{}, fmt.Errorf("encode CA key: %w", err)
	}

	return CertificateAuthority{
		Cert: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Key:  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
	}, nil
}
