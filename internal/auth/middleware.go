package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClaimsKey is the gin context key holding the verified *Claims.
const ClaimsKey = "auth.claims"

// RequireRole rejects requests without a valid bearer token carrying one of
// roles. Rejected requests are aborted before any later handler runs.
func RequireRole(v *Verifier, logger *zap.Logger, roles ...string) gin.HandlerFunc {
	log := logger.Named("auth")
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if header == "" || !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			log.Warn("Missing or malformed Authorization header", zap.String("path", c.FullPath()))
			abort(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			log.Warn("Token verification failed", zap.String("path", c.FullPath()), zap.Error(err))
			msg := "Not authorized, token failed"
			if errors.Is(err, ErrTokenExpired) {
				msg = "Not authorized, token expired"
			}
			abort(c, http.StatusUnauthorized, msg)
			return
		}

		if err := claims.Authorize(roles...); err != nil {
			log.Warn("Insufficient role",
				zap.String("subject", claims.Subject),
				zap.Strings("roles", claims.Roles),
				zap.Strings("required", roles),
			)
			abort(c, http.StatusForbidden, "Not authorized as an admin")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by RequireRole.
func ClaimsFrom(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}
