package auth

import (
	"context"
)

type ctxKey string

const (
	userKey   ctxKey = "userClaims"
	clientKey ctxKey = "portalIdentity"
)

// Claims identifies an operator of the admin plane.
type Claims struct {
	Subject string
	Roles   []string
	JWTID   string
}

func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, userKey, c)
}

func FromContext(ctx context.Context) Claims {
	if v, ok := ctx.Value(userKey).(Claims); ok {
		return v
	}
	return Claims{}
}

func Subject(ctx context.Context) string {
	return FromContext(ctx).Subject
}

// Identity identifies a portal client resolved from a bearer token.
type Identity struct {
	ClientID string
	Email    string
	Name     string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, clientKey, id)
}

func IdentityFromContext(ctx context.Context) Identity {
	if v, ok := ctx.Value(clientKey).(Identity); ok {
		return v
	}
	return Identity{}
}
