package auth

import (
	"context"
	"errors"
)

var ErrNoIdentity = errors.New("auth: no identity in context")

type identity struct {
	userID int64
	role   string
}

type ctxKey struct{}

// WithIdentity attaches the authenticated actor. The engine never reads it; handlers pass the id explicitly.
func WithIdentity(ctx context.Context, userID int64, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity{userID: userID, role: role})
}

// UserID returns the authenticated caller. Handlers pass it on as the actor id.
func UserID(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(ctxKey{}).(identity)
	if !ok || id.userID <= 0 {
		return 0, ErrNoIdentity
	}
	return id.userID, nil
}

func Role(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ctxKey{}).(identity)
	if !ok || id.role == "" {
		return "", ErrNoIdentity
	}
	return id.role, nil
}
