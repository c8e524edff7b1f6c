// Package token signs and verifies webhook payloads for tradegate.
//
// Signal senders sign the raw request body with HMAC-SHA256 using a shared
// secret and send the hex digest in a header:
//
//	sig := token.Sign(body, secret)
//	req.Header.Set("X-Signature", sig)
//
// The server verifies it with constant-time comparison:
//
//	result := token.Verify(body, req.Header.Get("X-Signature"), secret)
//	if !result.OK {
//	    // reject with result.Reason
//	}
//
// A "sha256=" prefix on the header value is accepted, so GitHub-style
// X-Hub-Signature-256 headers verify unchanged.
//
// # Secret Generation
//
// Secrets are generated using crypto/rand:
//
//	secret, err := token.Generate()
//	// secret is a 44-character base64-URL-encoded string
package token
