package user

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const UserIDKey contextKey = "userId"

var ErrNoUser = errors.New("user not found")

// CurrentId retrieves the authenticated caller's id from the context. Returns ErrNoUser if it is absent or empty.
func CurrentId(ctx context.Context) (string, error) {
	id, ok := ctx.Value(UserIDKey).(string)
	if !ok || id == "" {
		log.Trace("user not found in context")
		return "", ErrNoUser
	}
	return id, nil
}

func WithId(ctx context.Context, userId string) context.Context {
	return context.WithValue(ctx, UserIDKey, userId)
}
