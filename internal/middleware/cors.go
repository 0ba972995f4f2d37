package middleware

import (
	"slices"

	"github.com/go-chi/cors"
)

// DefaultOrigins are the desktop shells that embed the local API.
var DefaultOrigins = []string{"tauri://localhost", "http://localhost:1420"}

// CORS returns cors.Options for the given allowed origins. With "*" the
// credentials flag is dropped, since browsers reject it with a wildcard.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultOrigins
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	}
}
