package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"muufin/internal/auth"
	"muufin/internal/logging"
)

// TLSConfigFor translates the authority's trust policy into a tls.Config
// for dialers that bypass the factory, such as the websocket client.
// Returns nil when the default system validation applies.
func TLSConfigFor(state auth.State, log logging.Logger) *tls.Config {
	return tlsConfigFor(state, log)
}

// tlsConfigFor translates the authority's trust policy into a tls.Config.
// Returns nil when the default system validation applies.
func tlsConfigFor(state auth.State, log logging.Logger) *tls.Config {
	switch state.TrustMode {
	case auth.TrustDisabled:
		log.Warn("Building HTTP client with TLS verification disabled")
		return &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit user opt-in

	case auth.TrustCustomCA:
		if len(state.TrustAnchorPEM) == 0 {
			return nil
		}
		anchors := x509.NewCertPool()
		if !anchors.AppendCertsFromPEM(state.TrustAnchorPEM) {
			log.Error("Persisted trust anchor did not parse, using system roots")
			return nil
		}
		system, err := x509.SystemCertPool()
		if err != nil {
			log.Warn("System cert pool unavailable, custom anchor only", "err", err)
			system = nil
		}
		// Verification is done in VerifyConnection so the chain can be checked
		// against system roots and the imported anchor independently: either
		// pool accepting the chain is sufficient.
		return &tls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- VerifyConnection performs full validation
			VerifyConnection:   unionVerifier(system, anchors),
		}

	default:
		return nil
	}
}

// unionVerifier validates the peer chain against each pool in turn and
// succeeds on the first acceptance. When every pool rejects, the last
// rejection reason is surfaced as a TrustError.
func unionVerifier(pools ...*x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return &TrustError{Err: fmt.Errorf("server presented no certificates")}
		}

		intermediates := x509.NewCertPool()
		for _, cert := range cs.PeerCertificates[1:] {
			intermediates.AddCert(cert)
		}

		var lastErr error
		for _, pool := range pools {
			if pool == nil {
				continue
			}
			opts := x509.VerifyOptions{
				Roots:         pool,
				Intermediates: intermediates,
				DNSName:       cs.ServerName,
			}
			if _, err := cs.PeerCertificates[0].Verify(opts); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no trust pools configured")
		}
		return &TrustError{Err: lastErr}
	}
}
