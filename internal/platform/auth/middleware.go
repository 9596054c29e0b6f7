package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller extracted from the bearer credential.
// RawToken keeps the credential verbatim so outbound registry calls can
// forward it and let the registry apply its own authorization.
type Principal struct {
	UserID   int64
	Role     Role
	RawToken string
}

// Claims is the JWT payload the user service mints at login.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type JWTConfig struct {
	// Secret is the HS256 key shared with the resource registry.
	Secret []byte
	// Skipper, when set, exempts matching requests from authentication.
	Skipper func(echo.Context) bool
}

// JWTMiddleware validates the Authorization bearer token and places the
// resulting Principal on the request context. Tokens with an unknown role
// are rejected outright rather than falling through to a capability miss.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			tokenStr := parts[1]
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.Secret, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			role := Role(claims.Role)
			if !role.Valid() {
				return echo.NewHTTPError(http.StatusUnauthorized, fmt.Sprintf("unknown role %q", claims.Role))
			}

			p := Principal{UserID: claims.UserID, Role: role, RawToken: tokenStr}
			ctx := context.WithValue(c.Request().Context(), principalKey, p)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// DevAuthMiddleware grants unauthenticated requests an admin principal.
// Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				p := Principal{UserID: 1, Role: RoleAdmin}
				ctx := context.WithValue(c.Request().Context(), principalKey, p)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

// RequireOperation gates a route on the capability table. The authorization
// check runs before any request parsing so a forbidden caller always sees
// 403, never a validation error.
func RequireOperation(op Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if !p.Role.Can(op) {
				return echo.NewHTTPError(http.StatusForbidden,
					fmt.Sprintf("role %q may not perform %s", p.Role, op))
			}
			return next(c)
		}
	}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal returns a context carrying p. Intended for tests and for
// internal callers such as the seed command.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
