package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextKeyUserID = "auth_user_id"

// identityMiddleware resolves the caller identity once per request from an
// HS256 bearer token and stashes the subject claim for the handlers. Engine
// operations only ever see the resolved user id as a plain argument.
func identityMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		const prefix = "Bearer "
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, prefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := jwt.Parse(strings.TrimPrefix(header, prefix),
			func(token *jwt.Token) (any, error) {
				return signingKey, nil
			},
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithIssuer(issuer),
		)
		if err != nil || !token.Valid {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}
		ctx.Set(contextKeyUserID, subject)
		ctx.Next()
	}
}

func callerID(ctx *gin.Context) string {
	return ctx.GetString(contextKeyUserID)
}
