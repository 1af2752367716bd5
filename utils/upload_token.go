package utils

import (
	"errors"
	"fmt"
	"time"

	"docrelay/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// UploadIssuer is the issuer written into upload tokens.
const UploadIssuer = "docrelay"

// MinUploadSecretLen is the HS256 key size required by RFC 7518.
const MinUploadSecretLen = 32

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrSubjectMismatch  = errors.New("token subject does not match upload")
)

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey       []byte        // HS256 key, at least MinUploadSecretLen bytes
	ExpectedSubject string        // Optional: file name the token was issued for
	ClockSkew       time.Duration // Optional: allow clock skew (default 0)
}

// CreateUploadToken issues a short-lived token allowing one named upload.
func CreateUploadToken(filename, secret string, ttl time.Duration) (string, error) {
	if len(secret) < MinUploadSecretLen {
		return "", fmt.Errorf("upload secret must be at least %d bytes", MinUploadSecretLen)
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := time.Now()
	claims := models.UploadClaims{
		Issuer:    UploadIssuer,
		Subject:   filename,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}
	return token, nil
}

// VerifyUploadToken checks signature, lifetime and (optionally) subject of an
// upload token and returns its claims.
func VerifyUploadToken(tokenString string, config VerifyConfig) (*models.UploadClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &models.UploadClaims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	now := time.Now().Unix()
	clockSkew := int64(config.ClockSkew.Seconds())

	if claims.ExpiresAt > 0 && claims.ExpiresAt < (now-clockSkew) {
		return nil, ErrTokenExpired
	}
	if claims.IssuedAt > 0 && claims.IssuedAt > (now+clockSkew) {
		return nil, ErrTokenNotYetValid
	}
	if config.ExpectedSubject != "" && claims.Subject != config.ExpectedSubject {
		return nil, fmt.Errorf("%w: expected '%s', got '%s'",
			ErrSubjectMismatch, config.ExpectedSubject, claims.Subject)
	}

	return claims, nil
}
