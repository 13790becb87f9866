// Package auth reads the bearer token the workspace signs in with. Issuing
// and refreshing tokens belongs to the backend.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no token")

// ReadToken returns the token stored at path, trimmed of surrounding
// whitespace.
func ReadToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", path, ErrNoToken)
		}
		return "", err
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("%s is empty: %w", path, ErrNoToken)
	}
	return token, nil
}

// DisplayName picks the name shown next to this user's cursor from the
// token's claims. The relay verifies the token; here it is only read.
func DisplayName(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
		for _, key := range []string{"full_name", "name"} {
			if name, ok := meta[key].(string); ok && strings.TrimSpace(name) != "" {
				return strings.TrimSpace(name)
			}
		}
	}
	for _, key := range []string{"name", "email", "sub"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
