// Package signer defines the boundary to the platform's opaque request
// signing (spec.md §4.1): an external collaborator this engine depends on
// but does not implement. Production deployments supply a Signer backed by
// the platform's real signature algorithm; this package only defines the
// contract and a pass-through stub useful for local development and tests.
package signer

import "context"

// Signer produces the headers, cookies, and signed body a single platform
// call needs. It is the `SignRequest(path, body) -> (headers, cookies,
// signedBody)` function from spec.md §1, scoped as an external collaborator.
type Signer interface {
	Sign(ctx context.Context, path string, body []byte, credentialToken string) (Signed, error)
}

// Signed is the output of one signing call.
type Signed struct {
	Headers     map[string]string
	Cookies     string
	SignedBody  []byte
}

// Passthrough is a no-op Signer: it returns the body unchanged with the
// credential token set as a Cookie header. It exists so the rest of the
// engine (transport, endpoint client, walker) can be exercised without the
// real signing algorithm, which this repository does not implement.
type Passthrough struct{}

// Sign implements Signer.
func (Passthrough) Sign(_ context.Context, _ string, body []byte, credentialToken string) (Signed, error) {
	return Signed{
		Headers:    map[string]string{"Content-Type": "application/json"},
		Cookies:    credentialToken,
		SignedBody: body,
	}, nil
}
