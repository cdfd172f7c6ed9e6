package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrInvalidSignature   = errors.New("signature does not match payload")
	ErrSignatureTimestamp = errors.New("signature timestamp outside tolerance")
)

// SignHMAC creates a hex HMAC-SHA256 signature for a message
func SignHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHMAC verifies an HMAC signature against a message using the provided secret
func VerifyHMAC(message, signature, secret string) bool {
	expectedMAC := SignHMAC(message, secret)
	return subtle.ConstantTimeCompare([]byte(signature), []byte(expectedMAC)) == 1
}

// SignStripePayload builds a Stripe-Signature header value for payload.
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + SignHMAC(ts+"."+string(payload), secret)
}

// VerifyStripeSignature checks a Stripe-Signature header ("t=...,v1=...")
// against the raw request body. Any v1 entry may match, so rotated secrets
// keep working during the overlap.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrMissingSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMissingSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return ErrSignatureTimestamp
		}
	}

	message := timestamp + "." + string(payload)
	for _, sig := range signatures {
		if VerifyHMAC(message, sig, secret) {
			return nil
		}
	}
	return ErrInvalidSignature
}
