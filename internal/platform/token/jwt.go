package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"onboard/internal/platform/middleware"
)

// Validator verifies HS256 bearer tokens issued by the surrounding
// platform (the conversational layer or an ops console). The engine only
// validates; it never issues tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type actorClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies the token, returning the actor id
// (subject) and declared roles.
func (v *Validator) ValidateToken(tokenString string) (*middleware.Claims, error) {
	var claims actorClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return &middleware.Claims{ActorID: claims.Subject, Roles: claims.Roles}, nil
}
