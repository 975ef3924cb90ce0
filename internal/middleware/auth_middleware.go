package middleware

import (
	"crypto/subtle"

	"github.com/damacus/r2-dashboard/internal/utils"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

// BasicAuth guards every route except the health check with a single
// user/password pair and records the user name in the echo context.
func BasicAuth(user, password string) echo.MiddlewareFunc {
	return echoMiddleware.BasicAuthWithConfig(echoMiddleware.BasicAuthConfig{
		Realm: utils.AuthRealm,
		Skipper: func(c echo.Context) bool {
			// Skip for public routes
			return c.Request().URL.Path == "/health"
		},
		Validator: func(u, p string, c echo.Context) (bool, error) {
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(p), []byte(password)) == 1
			if !userOK || !passOK {
				return false, nil
			}
			c.Set(utils.ContextKeyUser, u)
			return true, nil
		},
	})
}
