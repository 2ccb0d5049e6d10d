package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vaultgate/vaultgate/internal/identity"
	"github.com/vaultgate/vaultgate/internal/metrics"
	"github.com/vaultgate/vaultgate/internal/token"
)

const (
	// PrincipalContextKey is where auth middleware stores the caller identity
	PrincipalContextKey = "principal"
)

// bearerToken extracts the credential from an Authorization header
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}

	return parts[1], true
}

// CapabilityAuth validates a capability token and checks it grants the
// required action. The principal from the token is placed in the request
// context; handlers never look inside the token themselves.
func CapabilityAuth(svc *token.Service, requiredAction string) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "authentication_missing",
			})
			c.Abort()
			return
		}

		claims, err := svc.Verify(credential)
		if err != nil {
			reason := "invalid"
			if errors.Is(err, token.ErrTokenExpired) {
				reason = "expired"
			}
			metrics.TokenVerificationFailures.WithLabelValues(reason).Inc()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
				"code":  "authentication_missing",
			})
			c.Abort()
			return
		}

		if claims.Action != requiredAction {
			metrics.TokenVerificationFailures.WithLabelValues("scope").Inc()
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Token does not grant this action",
				"code":  "scope_mismatch",
			})
			c.Abort()
			return
		}

		c.Set(PrincipalContextKey, claims.Principal)
		c.Next()
	}
}

// IdentityAuth authenticates the front-door credential against the identity
// provider. Used on the control surface (token minting, listing, deletes)
// where the caller is a user session rather than a capability holder.
func IdentityAuth(verifier identity.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "authentication_missing",
			})
			c.Abort()
			return
		}

		principal, err := verifier.Verify(c.Request.Context(), credential)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
				"code":  "authentication_missing",
			})
			c.Abort()
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Next()
	}
}

// GetPrincipal retrieves the authenticated principal from the context
func GetPrincipal(c *gin.Context) (string, bool) {
	principal, exists := c.Get(PrincipalContextKey)
	if !exists {
		return "", false
	}

	principalStr, ok := principal.(string)
	return principalStr, ok
}

// RequireOwnPrincipal rejects requests whose "principal" query parameter
// names anyone but the authenticated caller. Namespaces are private.
func RequireOwnPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticated, ok := GetPrincipal(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
				"code":  "authentication_missing",
			})
			c.Abort()
			return
		}

		requested := c.Query("principal")
		if requested != "" && requested != authenticated {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Cannot access another principal's namespace",
				"code":  "scope_mismatch",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
