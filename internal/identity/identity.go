package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims is the verified identity carried in the access token. There is
// no local users table; the identity provider is the source of truth and
// the engine only needs id, display name and role.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HMAC-signed token and maps its claims to the
// request actor.
func ParseToken(secret, tokenString string) (actorcontext.Actor, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return actorcontext.Actor{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return actorcontext.Actor{}, ErrInvalidToken
	}

	userID, err := snowflake.ParseString(strings.TrimSpace(claims.Subject))
	if err != nil || userID == 0 {
		return actorcontext.Actor{}, ErrInvalidToken
	}
	role := strings.ToLower(strings.TrimSpace(claims.Role))
	if role == "" {
		return actorcontext.Actor{}, ErrInvalidToken
	}

	return actorcontext.Actor{
		UserID: userID,
		Name:   strings.TrimSpace(claims.Name),
		Role:   role,
	}, nil
}

// SignToken issues a token for the given actor. Used by tests and local
// tooling; production tokens come from the identity provider.
func SignToken(secret string, actor actorcontext.Actor, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Name: actor.Name,
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
