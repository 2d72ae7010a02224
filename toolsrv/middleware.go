// Package toolsrv implements the tool-protocol endpoint (spec section 6):
// an echo-based HTTP service exposing exactly two bearer-authenticated
// tools, hybrid_search and execute_raw_query, grounded on
// api/jwt.go (echo-jwt bearer middleware over SetupRoutes' protected
// group) and api/authorization.go (the SetUser/GetUser context-helper
// pair over an AuthUser-shaped struct).
package toolsrv

import (
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"kbengine.dev/auth"
)

// contextKey is where a validated token's claims are stored in the Echo
// context, mirroring api/authorization.go's contextKeyUser constant.
const contextKey = "toolsrv_claims"

// BearerAuth builds the middleware protecting every tool-protocol route.
// Unlike api/jwt.go's echojwt.WithConfig call, which only ever validates
// one token flavor against a single signing key, this service must accept
// either an access token or a tool token (spec section 4.12: "The
// tool-protocol surface accepts either access or tool tokens and extracts
// the same user context"), so validation is delegated to
// echojwt.Config.ParseTokenFunc rather than its built-in single-key JWT
// parser: it tries ValidateAccessToken first (a pure signature/expiry
// check), then falls back to ValidateToolToken (which additionally
// confirms the backing ToolToken row is still active).
func BearerAuth(svc *auth.Service) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  contextKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, tokenString string) (interface{}, error) {
			if claims, err := svc.ValidateAccessToken(tokenString); err == nil {
				return claims, nil
			}
			return svc.ValidateToolToken(c.Request().Context(), tokenString)
		},
	})
}

// GetUser retrieves the claims BearerAuth validated for the current
// request, in the GetUser/SetUser-pair style api/authorization.go uses.
func GetUser(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(contextKey).(*auth.Claims)
	return claims, ok
}
