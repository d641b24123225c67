package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"backoffice/internal/model"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	actorKey    = "actor"
	tokenCookie = "access_token"
)

var errMissingToken = errors.New("authorization is missing")

// ParseToken validates an HMAC-signed access token and builds the actor it
// names. Roles come from a "role" string or a "roles" array claim. The system
// role is never honoured from a token.
func ParseToken(secret []byte, tokenString string) (model.Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return model.Actor{}, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return model.Actor{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Actor{}, errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return model.Actor{}, errors.New("token subject is not a user id")
	}

	var roles []string
	if r, ok := claims["role"].(string); ok {
		roles = append(roles, r)
	}
	if list, ok := claims["roles"].([]interface{}); ok {
		for _, r := range list {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}
	kept := roles[:0]
	for _, r := range roles {
		if r != model.RoleSystem {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return model.Actor{}, errors.New("role not found in token")
	}
	return model.NewActor(id, kept...), nil
}

// tokenFrom reads the access token from the cookie first, then the Authorization header.
func tokenFrom(c *gin.Context) (string, error) {
	if tok, err := c.Cookie(tokenCookie); err == nil && tok != "" {
		return tok, nil
	}
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization format. Expected 'Bearer <token>'")
		}
		return parts[1], nil
	}
	return "", errMissingToken
}

// Authenticate resolves the caller from the access token and stores it on the context.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := tokenFrom(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, capitalize(err.Error())))
			return
		}
		actor, err := ParseToken(secret, tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, capitalize(err.Error())))
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole lets the request through when the authenticated actor holds any of allowedRoles.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		if !actor.HasAny(allowedRoles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}
		c.Next()
	}
}

// ActorFrom returns the actor set by Authenticate.
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
