// Package signer authenticates webhook deliveries via a timestamped
// HMAC-SHA256 signature header of the form `t=<epochMs>,v1=<hexHmac>`.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxSkew bounds how old (or future-dated) a signature may be.
	DefaultMaxSkew = 5 * time.Minute

	ReasonMissingSecret = "missing_secret"
	ReasonMalformed     = "malformed_header"
	ReasonStale         = "stale"
	ReasonMismatch      = "mismatch"
)

// Result is the outcome of a signature check. Provided=false means the
// request simply carried no signature header, which some ingress paths
// accept when the source IP is allowlisted instead.
type Result struct {
	Provided bool
	Valid    bool
	Reason   string
}

// Sign produces the header value for a body at the given timestamp.
func Sign(body []byte, secret string, ts time.Time) string {
	ms := ts.UnixMilli()
	return fmt.Sprintf("t=%d,v1=%s", ms, computeHex(body, secret, ms))
}

// Verify checks a signature header against the raw request body. The HMAC
// covers `<body>.<timestamp>` so neither can be swapped independently, and
// the comparison is constant-time.
func Verify(header string, body []byte, secret string, maxSkew time.Duration, now time.Time) Result {
	header = strings.TrimSpace(header)
	if header == "" {
		return Result{Provided: false}
	}
	if secret == "" {
		return Result{Provided: true, Reason: ReasonMissingSecret}
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	ts, sig, ok := parseHeader(header)
	if !ok {
		return Result{Provided: true, Reason: ReasonMalformed}
	}

	drift := now.UnixMilli() - ts
	if drift < 0 {
		drift = -drift
	}
	if drift > maxSkew.Milliseconds() {
		return Result{Provided: true, Reason: ReasonStale}
	}

	expected := computeHex(body, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return Result{Provided: true, Reason: ReasonMismatch}
	}
	return Result{Provided: true, Valid: true}
}

func parseHeader(header string) (ts int64, sig string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return 0, "", false
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", false
	}
	return ts, sig, true
}

func computeHex(body []byte, secret string, ms int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte("."))
	mac.Write([]byte(strconv.FormatInt(ms, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
