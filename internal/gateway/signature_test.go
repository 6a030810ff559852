package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature_Deterministic(t *testing.T) {
	a := Signature("FB-abc123", "200", "150000.00", "server-key")
	b := Signature("FB-abc123", "200", "150000.00", "server-key")
	assert.Equal(t, a, b)
	assert.Len(t, a, 128) // hex-encoded sha512
}

func TestVerifySignature(t *testing.T) {
	sig := Signature("FB-abc123", "200", "150000.00", "server-key")

	assert.True(t, VerifySignature("FB-abc123", "200", "150000.00", "server-key", sig))

	// Any tampered field invalidates the signature.
	assert.False(t, VerifySignature("FB-abc124", "200", "150000.00", "server-key", sig))
	assert.False(t, VerifySignature("FB-abc123", "201", "150000.00", "server-key", sig))
	assert.False(t, VerifySignature("FB-abc123", "200", "1.00", "server-key", sig))
	assert.False(t, VerifySignature("FB-abc123", "200", "150000.00", "other-key", sig))
	assert.False(t, VerifySignature("FB-abc123", "200", "150000.00", "server-key", ""))
}
