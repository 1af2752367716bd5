package utils

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Sign produces the compact HS256 token the conversion engine expects:
// base64url(header).base64url(payload).base64url(HMAC-SHA256(secret, header.payload)),
// without padding. The payload is the JSON object of fields with its keys
// sorted, so the output is deterministic for the same inputs.
//
// An empty secret disables signing: Sign returns "" and no token is attached.
func Sign(fields map[string]string, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}

	claims := make(jwt.MapClaims, len(fields))
	for k, v := range fields {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
