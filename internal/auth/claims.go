package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims identifies the user performing a mapping mutation
type ActorClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Actor returns the email, falling back to the subject
func (c *ActorClaims) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// IssueActorToken signs an HS256 token for email
func IssueActorToken(secret []byte, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := ActorClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ParseActorToken validates an HS256 bearer token and returns its claims
func ParseActorToken(secret []byte, tokenString string) (*ActorClaims, error) {
	claims := &ActorClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Actor() == "" {
		return nil, errors.New("missing email claim")
	}
	return claims, nil
}
