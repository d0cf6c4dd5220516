package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// CORSConfig returns the CORS configuration used by the application.
// Centralised here so that both main.go and tests reference the same config.
func CORSConfig(frontendURL string) middleware.CORSConfig {
	origins := []string{
		"http://localhost:3000", // Development
		"https://noomo.ai",      // Production
		"https://www.noomo.ai",  // Production WWW
	}
	if frontendURL != "" {
		origins = append(origins, frontendURL)
	}

	return middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}
}
