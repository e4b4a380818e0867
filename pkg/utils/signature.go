package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// GetMessageDigestOrSignature returns the hex HMAC-SHA256 of msg under key.
func GetMessageDigestOrSignature(msg, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("empty signing key")
	}
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(msg); err != nil {
		return "", err
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}
