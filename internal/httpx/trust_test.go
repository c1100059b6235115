package httpx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"muufin/internal/auth"
	"muufin/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger(nil)
}

// makeCA creates a self-signed CA and returns it with its key.
func makeCA(t *testing.T) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create ca: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse ca: %v", err)
	}
	return cert, key
}

// makeLeaf issues a server certificate for host signed by the given CA.
func makeLeaf(t *testing.T, ca *x509.Certificate, caKey *ecdsa.PrivateKey, host string) *x509.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: host},
		DNSNames:     []string{host},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &key.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse leaf: %v", err)
	}
	return cert
}

func TestUnionVerifierAcceptsAnchorTrustedChain(t *testing.T) {
	ca, caKey := makeCA(t)
	leaf := makeLeaf(t, ca, caKey, "media.example.com")

	anchors := x509.NewCertPool()
	anchors.AddCert(ca)

	verify := unionVerifier(nil, anchors)
	cs := tls.ConnectionState{
		ServerName:       "media.example.com",
		PeerCertificates: []*x509.Certificate{leaf, ca},
	}
	if err := verify(cs); err != nil {
		t.Errorf("Expected chain trusted by imported anchor to verify, got %v", err)
	}
}

func TestUnionVerifierRejectsUntrustedChain(t *testing.T) {
	ca, caKey := makeCA(t)
	leaf := makeLeaf(t, ca, caKey, "media.example.com")

	otherCA, _ := makeCA(t)
	anchors := x509.NewCertPool()
	anchors.AddCert(otherCA)

	verify := unionVerifier(nil, anchors)
	cs := tls.ConnectionState{
		ServerName:       "media.example.com",
		PeerCertificates: []*x509.Certificate{leaf, ca},
	}
	err := verify(cs)
	if err == nil {
		t.Fatal("Expected verification to fail when no pool trusts the chain")
	}
	var trustErr *TrustError
	if !errors.As(err, &trustErr) {
		t.Errorf("Expected TrustError, got %T: %v", err, err)
	}
	var unknownAuthority x509.UnknownAuthorityError
	if !errors.As(trustErr.Err, &unknownAuthority) {
		t.Errorf("Expected the rejection reason to be surfaced, got %v", trustErr.Err)
	}
}

func TestUnionVerifierHostnameMismatch(t *testing.T) {
	ca, caKey := makeCA(t)
	leaf := makeLeaf(t, ca, caKey, "media.example.com")

	anchors := x509.NewCertPool()
	anchors.AddCert(ca)

	verify := unionVerifier(nil, anchors)
	cs := tls.ConnectionState{
		ServerName:       "other.example.com",
		PeerCertificates: []*x509.Certificate{leaf, ca},
	}
	if err := verify(cs); err == nil {
		t.Error("Expected hostname mismatch to fail verification")
	}
}

func serverState(srv *httptest.Server, mode auth.TrustMode, anchor []byte) auth.State {
	return auth.State{
		ServerBaseURL:  srv.URL,
		AccessToken:    "t1",
		DeviceID:       "d1",
		ClientName:     "Muufin",
		DeviceName:     "test",
		AppVersion:     "0.1.0",
		TrustMode:      mode,
		TrustAnchorPEM: anchor,
	}
}

func TestCustomAnchorEndToEnd(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	anchorPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})

	state := serverState(srv, auth.TrustCustomCA, anchorPEM)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: TLSConfigFor(state, testLogger()),
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Expected request to succeed with imported anchor: %v", err)
	}
	resp.Body.Close()

	// Without the anchor the self-signed server must be rejected.
	systemState := serverState(srv, auth.TrustSystem, nil)
	plain := &http.Client{Transport: &http.Transport{
		TLSClientConfig: TLSConfigFor(systemState, testLogger()),
	}}
	if resp, err := plain.Get(srv.URL); err == nil {
		resp.Body.Close()
		t.Error("Expected system-trust request to a self-signed server to fail")
	}
}

func TestTrustDisabledAcceptsAnyCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	state := serverState(srv, auth.TrustDisabled, nil)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: TLSConfigFor(state, testLogger()),
	}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Expected request to succeed with verification disabled: %v", err)
	}
	resp.Body.Close()
}
