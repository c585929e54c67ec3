package report

import (
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces RSASSA-PKCS1-v1_5 signatures over SHA-256 (RS256).
type Signer struct {
	key *rsa.PrivateKey
}

// ParseSigner reads an RSA private key in PKCS#1 or PKCS#8 PEM form.
func ParseSigner(pemData []byte) (*Signer, error) {
	if len(pemData) == 0 {
		return nil, errors.New("signing key is empty")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Sign returns the hex-encoded signature of payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(string(payload), s.key)
	if err != nil {
		return "", fmt.Errorf("sign snapshot: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

// VerifySignature checks a hex signature produced by Sign.
func VerifySignature(pub *rsa.PublicKey, payload []byte, signature string) error {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return jwt.SigningMethodRS256.Verify(string(payload), sig, pub)
}
