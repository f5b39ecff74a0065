package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var ErrNoCertificate = errors.New("peer presented no certificate")

// CertificateInfo describes a leaf certificate as seen during a handshake.
type CertificateInfo struct {
	Domain             string
	Issuer             string
	Subject            string
	SerialNumber       string
	SignatureAlgorithm string
	PublicKeyAlgorithm string
	PublicKeyBits      int
	SubjectAltNames    []string
	Fingerprint        string
	NotBefore          time.Time
	NotAfter           time.Time
}

type TLSInspector struct {
	port    int
	timeout time.Duration
}

func NewTLSInspector(port int, timeout time.Duration) *TLSInspector {
	if port <= 0 {
		port = 443
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TLSInspector{port: port, timeout: timeout}
}

// Inspect performs a handshake against host and returns its leaf certificate.
// Verification is skipped so expired or mismatched certificates can still be read.
func (i *TLSInspector) Inspect(ctx context.Context, host string) (*CertificateInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // inspection only
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(i.port)))
	if err != nil {
		return nil, fmt.Errorf("tls handshake %s: %w", host, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoCertificate
	}
	return Describe(host, state.PeerCertificates[0]), nil
}

func Describe(domain string, cert *x509.Certificate) *CertificateInfo {
	algo, bits := publicKeyInfo(cert)
	sum := sha256.Sum256(cert.Raw)

	sans := make([]string, 0, len(cert.DNSNames)+len(cert.IPAddresses))
	sans = append(sans, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		sans = append(sans, ip.String())
	}

	return &CertificateInfo{
		Domain:             domain,
		Issuer:             cert.Issuer.String(),
		Subject:            cert.Subject.String(),
		SerialNumber:       cert.SerialNumber.Text(16),
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		PublicKeyAlgorithm: algo,
		PublicKeyBits:      bits,
		SubjectAltNames:    sans,
		Fingerprint:        colonHex(sum[:]),
		NotBefore:          cert.NotBefore,
		NotAfter:           cert.NotAfter,
	}
}

func publicKeyInfo(cert *x509.Certificate) (string, int) {
	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return "RSA", key.N.BitLen()
	case *ecdsa.PublicKey:
		return "ECDSA", key.Curve.Params().BitSize
	case ed25519.PublicKey:
		return "Ed25519", 256
	default:
		return cert.PublicKeyAlgorithm.String(), 0
	}
}

func colonHex(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}

// DaysRemaining is the whole number of days until expiry, rounded down.
// It is negative once the certificate has expired.
func DaysRemaining(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// HostFromURL extracts the hostname a TLS check should dial.
func HostFromURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("target url %q has no host", raw)
	}
	return u.Hostname(), nil
}
