package ticket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// qrClaims binds a ticket to its booking, passenger and departure. The
// encoded payload is what gate scanners read; the HMAC lets a gate verify a
// ticket offline without trusting the QR contents.
type qrClaims struct {
	TicketCode    string    `json:"ticket_code"`
	BookingCode   string    `json:"booking_code"`
	PassengerName string    `json:"passenger_name"`
	DepartureID   int64     `json:"departure_id"`
	DepartureTime time.Time `json:"departure_time"`
}

// EncodeQR serializes claims as base64url(json) + "." + base64url(mac).
func EncodeQR(claims qrClaims, secret []byte) (string, error) {
	body, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encode qr claims: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(body) + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DecodeQR verifies the payload's MAC and returns the embedded claims.
func DecodeQR(payload string, secret []byte) (*qrClaims, error) {
	bodyPart, macPart, found := strings.Cut(payload, ".")
	if !found {
		return nil, fmt.Errorf("malformed qr payload")
	}
	body, err := base64.RawURLEncoding.DecodeString(bodyPart)
	if err != nil {
		return nil, fmt.Errorf("malformed qr payload")
	}
	got, err := base64.RawURLEncoding.DecodeString(macPart)
	if err != nil {
		return nil, fmt.Errorf("malformed qr payload")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return nil, fmt.Errorf("qr payload signature mismatch")
	}

	var claims qrClaims
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("malformed qr payload")
	}
	return &claims, nil
}
