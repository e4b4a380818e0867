package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// sealedPrefix marks values written by Seal so plain legacy values still read back.
const sealedPrefix = "enc:v1:"

const (
	keySalt       = "az-connect/credentials"
	keyIterations = 100000
	keySize       = 32
)

var ErrNoKey = errors.New("value is encrypted but no credentials key is configured")

// Sealer encrypts stored credentials with AES-256-GCM. The zero value and a
// Sealer built from an empty key pass values through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256 key from key with PBKDF2-SHA256.
func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	derived := pbkdf2.Key([]byte(key), []byte(keySalt), keyIterations, keySize, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

func (s *Sealer) Enabled() bool {
	return s != nil && s.aead != nil
}

func (s *Sealer) Seal(plainText string) (string, error) {
	if !s.Enabled() || plainText == "" {
		return plainText, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	cipherText := s.aead.Seal(nonce, nonce, []byte(plainText), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(cipherText), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (s *Sealer) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return value, nil
	}
	if !s.Enabled() {
		return "", ErrNoKey
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("sealed value too short")
	}

	plain, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}
