package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/cors"
)

// CORS answers preflight requests for the web client's origins.
func CORS(origins []string) echo.MiddlewareFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		ExposedHeaders:   []string{echo.HeaderXRequestID, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           3600,
	})
	return echo.WrapMiddleware(c.Handler)
}
