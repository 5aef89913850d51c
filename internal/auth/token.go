package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Portal tokens are NOT a security boundary. The default format encodes the
// client's email reversibly and anyone who knows an email can mint one. That
// is the documented contract of this low-stakes self-service portal. Setting
// PORTAL_TOKEN_SECRET switches new logins to signed HS256 tokens; legacy
// formats stay verifiable either way so existing sessions keep working.
const (
	emailTokenPrefix  = "email-token-"
	legacyTokenPrefix = "mock-token-"

	signedTokenTTL = 30 * 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// PortalToken is the decoded identity reference carried by a portal bearer
// token: exactly one of Email or ClientID is set.
type PortalToken struct {
	Email    string
	ClientID string
}

// EncodeEmailToken builds the default reversible portal token.
func EncodeEmailToken(email string) string {
	return emailTokenPrefix + base64.StdEncoding.EncodeToString([]byte(email))
}

// SignPortalToken issues a signed client token when a secret is configured.
func SignPortalToken(secret, clientID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  clientID,
		"kind": "client",
		"exp":  time.Now().Add(signedTokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DecodePortalToken accepts the email-token and legacy mock-token formats,
// plus signed client tokens when secret is non-empty. Malformed input maps
// to ErrInvalidToken.
func DecodePortalToken(secret, raw string) (PortalToken, error) {
	switch {
	case strings.HasPrefix(raw, emailTokenPrefix):
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, emailTokenPrefix))
		if err != nil || len(b) == 0 {
			return PortalToken{}, ErrInvalidToken
		}
		return PortalToken{Email: string(b)}, nil
	case strings.HasPrefix(raw, legacyTokenPrefix):
		id := strings.TrimPrefix(raw, legacyTokenPrefix)
		if id == "" {
			return PortalToken{}, ErrInvalidToken
		}
		return PortalToken{ClientID: id}, nil
	case secret != "":
		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !tok.Valid {
			return PortalToken{}, ErrInvalidToken
		}
		mapc, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			return PortalToken{}, ErrInvalidToken
		}
		if kind, _ := mapc["kind"].(string); kind != "client" {
			return PortalToken{}, ErrInvalidToken
		}
		sub, _ := mapc["sub"].(string)
		if sub == "" {
			return PortalToken{}, ErrInvalidToken
		}
		return PortalToken{ClientID: sub}, nil
	default:
		return PortalToken{}, ErrInvalidToken
	}
}
