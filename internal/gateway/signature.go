package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Signature computes the gateway's notification signature: the hex-encoded
// SHA-512 of order id, status code, gross amount and the merchant server key
// concatenated in that order.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a notification's signature in constant time.
func VerifySignature(orderID, statusCode, grossAmount, serverKey, got string) bool {
	want := Signature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
