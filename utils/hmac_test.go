package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashBodySHA256(t *testing.T) {
	assert.Equal(t, EmptyBodyHash, HashBodySHA256(nil))
	assert.Equal(t, EmptyBodyHash, HashBodySHA256([]byte{}))
	assert.NotEqual(t, EmptyBodyHash, HashBodySHA256([]byte("payload")))
}

func TestSignatureRoundTrip(t *testing.T) {
	stringToSign := BuildStringToSign("POST", "/v1/transform", 1700000000, HashBodySHA256([]byte("body")))
	signature := ComputeHMACSHA256("secret", stringToSign)

	assert.True(t, SecureCompare(signature, ComputeHMACSHA256("secret", stringToSign)))
	assert.False(t, SecureCompare(signature, ComputeHMACSHA256("other-secret", stringToSign)))
	assert.False(t, SecureCompare(signature, signature[:10]))
}
