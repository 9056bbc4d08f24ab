package rest

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const queryHashAlg = "SHA512"

// QueryHash returns the lowercase hex SHA-512 digest of a rendered query string.
func QueryHash(query string) string {
	sum := sha512.Sum512([]byte(query))
	return hex.EncodeToString(sum[:])
}

// generateToken generates JWT token for authentication.
// An empty query signs only the access key and nonce.
func (c *Client) generateToken(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.New().String(),
	}

	if query != "" {
		claims["query_hash"] = QueryHash(query)
		claims["query_hash_alg"] = queryHashAlg
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}
