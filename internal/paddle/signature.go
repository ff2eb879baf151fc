// Package paddle verifies and decodes Paddle Billing webhook notifications.
//
// Paddle signs every notification with the endpoint's secret key and sends
// the result in a header of the form:
//
//	Paddle-Signature: ts=1671552777;h1=eb4d0dc8853be92b7f063b9f3ba5233eb920a09459b6e6b2c26705b4364db151
//
// where h1 = hex(HMAC-SHA256(secret, ts + ":" + raw_body)).
//
// The raw body must be the exact bytes received. Decoding and re-encoding the
// JSON first changes whitespace and key order, and the signature no longer
// matches.
package paddle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the HTTP header Paddle puts the signature in.
const SignatureHeader = "Paddle-Signature"

var (
	ErrMissingSecret    = errors.New("paddle: webhook secret not configured")
	ErrMalformedHeader  = errors.New("paddle: malformed signature header")
	ErrSignatureInvalid = errors.New("paddle: signature mismatch")
	ErrSignatureExpired = errors.New("paddle: signature timestamp outside tolerance")
)

// Signature is a parsed Paddle-Signature header. Paddle may send several h1
// values while a secret is being rotated; any one of them matching is enough.
type Signature struct {
	Timestamp string
	H1        []string
}

// ParseSignatureHeader splits "ts=...;h1=..." into its parts.
func ParseSignatureHeader(header string) (*Signature, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMalformedHeader
	}

	sig := &Signature{}
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, part)
		}
		switch key {
		case "ts":
			sig.Timestamp = value
		case "h1":
			sig.H1 = append(sig.H1, value)
		}
	}

	if sig.Timestamp == "" || len(sig.H1) == 0 {
		return nil, ErrMalformedHeader
	}
	if _, err := strconv.ParseInt(sig.Timestamp, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrMalformedHeader, sig.Timestamp)
	}
	return sig, nil
}

// Verifier checks webhook signatures against one shared secret.
type Verifier struct {
	secret []byte
	// maxAge rejects signatures older (or newer) than this. Zero disables
	// the check.
	maxAge time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier. An empty secret is allowed; every Verify
// call then fails with ErrMissingSecret.
func NewVerifier(secret string, maxAge time.Duration) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Tests use it to pin "now".
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks header against body.
func (v *Verifier) Verify(body []byte, header string) error {
	if len(v.secret) == 0 {
		return ErrMissingSecret
	}

	sig, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}

	if v.maxAge > 0 {
		ts, _ := strconv.ParseInt(sig.Timestamp, 10, 64)
		age := v.now().Sub(time.Unix(ts, 0))
		if age > v.maxAge || age < -v.maxAge {
			return ErrSignatureExpired
		}
	}

	expected := Sign(v.secret, sig.Timestamp, body)
	for _, h1 := range sig.H1 {
		// hmac.Equal is constant-time; a plain == leaks how many leading
		// bytes matched.
		if hmac.Equal([]byte(h1), []byte(expected)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// Sign computes the h1 value for ts and body.
func Sign(secret []byte, ts string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte(":"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a complete header value. Used by tests and the
// seed tool to produce deliverable webhook requests.
func SignatureHeaderValue(secret string, ts time.Time, body []byte) string {
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + tsStr + ";h1=" + Sign([]byte(secret), tsStr, body)
}
