package signer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Now()
	body := []byte(`{"symbol":"BTCUSDT","side":"buy"}`)
	header := Sign(body, "whsec_test", now)

	res := Verify(header, body, "whsec_test", DefaultMaxSkew, now)
	require.True(t, res.Provided)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Reason)
}

func TestVerifyMissingHeader(t *testing.T) {
	res := Verify("", []byte("{}"), "whsec_test", DefaultMaxSkew, time.Now())
	assert.False(t, res.Provided)
	assert.False(t, res.Valid)
}

func TestVerifyBodyMutationFlips(t *testing.T) {
	now := time.Now()
	body := []byte(`{"symbol":"BTCUSDT","qty":1}`)
	header := Sign(body, "whsec_test", now)

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		res := Verify(header, mutated, "whsec_test", DefaultMaxSkew, now)
		assert.False(t, res.Valid, "mutation at byte %d must invalidate", i)
		assert.Equal(t, ReasonMismatch, res.Reason)
	}
}

func TestVerifySignatureMutationFlips(t *testing.T) {
	now := time.Now()
	body := []byte(`{"symbol":"ETHUSDT"}`)
	header := Sign(body, "whsec_test", now)

	// Flip the last hex character of v1.
	mutated := header[:len(header)-1]
	if header[len(header)-1] == 'a' {
		mutated += "b"
	} else {
		mutated += "a"
	}
	res := Verify(mutated, body, "whsec_test", DefaultMaxSkew, now)
	assert.False(t, res.Valid)
}

func TestVerifyStaleTimestamp(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	header := Sign(body, "whsec_test", now.Add(-6*time.Minute))

	res := Verify(header, body, "whsec_test", DefaultMaxSkew, now)
	require.True(t, res.Provided)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonStale, res.Reason)

	// Future-dated signatures are just as stale.
	header = Sign(body, "whsec_test", now.Add(6*time.Minute))
	res = Verify(header, body, "whsec_test", DefaultMaxSkew, now)
	assert.Equal(t, ReasonStale, res.Reason)
}

func TestVerifyWithinSkew(t *testing.T) {
	now := time.Now()
	body := []byte(`{"x":1}`)
	for _, offset := range []time.Duration{0, time.Minute, -time.Minute, 4 * time.Minute} {
		header := Sign(body, "whsec_test", now.Add(offset))
		res := Verify(header, body, "whsec_test", DefaultMaxSkew, now)
		assert.True(t, res.Valid, "offset %v should verify", offset)
	}
}

func TestVerifyMalformedHeader(t *testing.T) {
	for _, header := range []string{"garbage", "t=abc,v1=00", "v1=00", "t=123"} {
		res := Verify(header, []byte("{}"), "whsec_test", DefaultMaxSkew, time.Now())
		assert.True(t, res.Provided, header)
		assert.False(t, res.Valid, header)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Now()
	body := []byte(`{}`)
	header := Sign(body, "whsec_a", now)
	res := Verify(header, body, "whsec_b", DefaultMaxSkew, now)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonMismatch, res.Reason)
}

func TestSignFormat(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	header := Sign([]byte("body"), "s", ts)
	assert.Equal(t, fmt.Sprintf("t=%d,v1=", ts.UnixMilli()), header[:len(header)-64])
}
