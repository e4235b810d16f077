package apple

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/vibast-solutions/ms-go-fan-billing/app/service"
	"golang.org/x/crypto/ocsp"
)

type VerifierConfig struct {
	Roots            *x509.CertPool
	OnlineRevocation bool
	HTTPClient       *http.Client
}

// Verifier checks App Store JWS payloads signed with an x5c certificate chain.
type Verifier struct {
	roots            *x509.CertPool
	onlineRevocation bool
	client           *http.Client
	now              func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Roots == nil {
		return nil, errors.New("apple verifier: root certificates are required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Verifier{
		roots:            cfg.Roots,
		onlineRevocation: cfg.OnlineRevocation,
		client:           client,
		now:              time.Now,
	}, nil
}

// LoadRootCAs reads PEM or DER encoded certificates from disk.
func LoadRootCAs(paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	loaded := 0
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read root certificate %s: %w", path, err)
		}
		certs, err := parseCertificates(raw)
		if err != nil {
			return nil, fmt.Errorf("parse root certificate %s: %w", path, err)
		}
		for _, cert := range certs {
			pool.AddCert(cert)
			loaded++
		}
	}
	if loaded == 0 {
		return nil, errors.New("no apple root certificates configured")
	}
	return pool, nil
}

func parseCertificates(raw []byte) ([]*x509.Certificate, error) {
	if !bytes.Contains(raw, []byte("-----BEGIN")) {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, err
		}
		return []*x509.Certificate{cert}, nil
	}

	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates in PEM data")
	}
	return certs, nil
}

// Verify validates the signature and certificate chain and returns the payload.
func (v *Verifier) Verify(ctx context.Context, token string) ([]byte, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty signed payload", service.ErrInvalidRequest)
	}

	jws, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		return nil, fmt.Errorf("%w: malformed jws: %v", service.ErrUnauthorized, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one signature", service.ErrUnauthorized)
	}

	chains, err := jws.Signatures[0].Header.Certificates(x509.VerifyOptions{
		Roots:       v.roots,
		CurrentTime: v.now(),
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: certificate chain: %v", service.ErrUnauthorized, err)
	}
	if len(chains) == 0 || len(chains[0]) < 2 {
		return nil, fmt.Errorf("%w: empty certificate chain", service.ErrUnauthorized)
	}
	chain := chains[0]

	payload, err := jws.Verify(chain[0].PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", service.ErrUnauthorized, err)
	}

	if v.onlineRevocation {
		// Leaf and intermediate; the root is trusted by configuration.
		for i := 0; i+1 < len(chain) && i < 2; i++ {
			if err := v.checkRevocation(ctx, chain[i], chain[i+1]); err != nil {
				return nil, err
			}
		}
	}

	return payload, nil
}

func (v *Verifier) checkRevocation(ctx context.Context, cert, issuer *x509.Certificate) error {
	if len(cert.OCSPServer) == 0 {
		return nil
	}

	reqBody, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return fmt.Errorf("%w: ocsp request: %v", service.ErrUnauthorized, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cert.OCSPServer[0], bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("%w: ocsp request: %v", service.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ocsp responder: %v", service.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ocsp responder returned %s", service.ErrUpstreamUnavailable, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: ocsp response: %v", service.ErrUpstreamUnavailable, err)
	}

	parsed, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return fmt.Errorf("%w: ocsp response: %v", service.ErrUnauthorized, err)
	}
	if parsed.Status != ocsp.Good {
		return fmt.Errorf("%w: certificate %s revocation status %d", service.ErrUnauthorized, cert.Subject.CommonName, parsed.Status)
	}
	return nil
}
