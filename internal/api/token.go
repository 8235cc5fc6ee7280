package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dailydrops/drops/internal/feed"
)

// ErrNoCredential is returned when a request carries no bearer token
// and no fallback credential is configured
var ErrNoCredential = errors.New("no credential supplied")

type tokenKey struct{}

// BearerToken copies the request's bearer token into the request
// context, where the feed's token provider picks it up. Tokens are
// opaque here; how the caller obtained one is not our concern.
func BearerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
			ctx := context.WithValue(c.Request.Context(), tokenKey{}, token)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// TokenProvider builds the feed's credential supplier: the request's
// bearer token when present, else the configured fallback.
func TokenProvider(fallback string) feed.TokenProvider {
	return func(ctx context.Context) (string, error) {
		if token, ok := ctx.Value(tokenKey{}).(string); ok && token != "" {
			return token, nil
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", ErrNoCredential
	}
}
