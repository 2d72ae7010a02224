package toolsrv

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"kbengine.dev/auth"
	"kbengine.dev/common"
	"kbengine.dev/index"
	"kbengine.dev/search"
)

// Server wires the tool-protocol's two operations onto an echo.Echo
// instance, grounded on api/jwt.go's SetupRoutes (public group vs.
// JWT-protected group under a base path).
type Server struct {
	Echo   *echo.Echo
	auth   *auth.Service
	search *search.Orchestrator
	index  index.Index
	log    *logrus.Entry
}

// New builds a Server with both tool routes registered under the
// bearer-protected group; there is no public group in this service since
// every tool requires an authenticated caller.
func New(authSvc *auth.Service, orchestrator *search.Orchestrator, idx index.Index, log *logrus.Entry) *Server {
	e := echo.New()
	e.HTTPErrorHandler = httpErrorHandler(log)

	s := &Server{Echo: e, auth: authSvc, search: orchestrator, index: idx, log: log}

	tools := e.Group("/v1/tools")
	tools.Use(BearerAuth(authSvc))
	tools.POST("/hybrid_search", s.hybridSearch)
	tools.POST("/execute_raw_query", s.executeRawQuery)

	return s
}

// errorEnvelope is the stable {error: {code, message}} shape spec section
// 7 names, grounded on api/rest.go's map[string]string JSON error
// responses, generalized to a nested object carrying a stable code.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusForKind(k common.Kind) int {
	switch k {
	case common.KindPermanentInput:
		return http.StatusBadRequest
	case common.KindPermission:
		return http.StatusForbidden
	case common.KindInvariant:
		return http.StatusInternalServerError
	case common.KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError renders err as the stable error envelope with a status code
// derived from its common.Kind.
func writeError(c echo.Context, err error) error {
	kind := common.KindOf(err)
	return c.JSON(statusForKind(kind), errorEnvelope{Error: errorBody{
		Code:    kind.Code(),
		Message: err.Error(),
	}})
}

// httpErrorHandler renders Echo-level errors (bad bind, 404, middleware
// rejection) through the same envelope so the surface never leaks an
// inconsistent error shape depending on where a request failed.
func httpErrorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		if jsonErr := c.JSON(code, errorEnvelope{Error: errorBody{Code: "unavailable", Message: msg}}); jsonErr != nil {
			log.WithError(jsonErr).Error("failed to write error envelope")
		}
	}
}
