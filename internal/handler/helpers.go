package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"lacocina/onboarding/internal/handler/middleware"
	jwtpkg "lacocina/onboarding/pkg/jwt"
)

var ErrNoClaims = errors.New("claims not found in context")

// getClientID returns the namespace of the calling client.
func getClientID(c *gin.Context) (string, error) {
	claimsVal, exists := c.Get(middleware.ContextKeyClientClaims)
	if !exists {
		return "", ErrNoClaims
	}
	claims, ok := claimsVal.(*jwtpkg.Claims)
	if !ok || claims.Subject == "" {
		return "", ErrNoClaims
	}
	return claims.Subject, nil
}
