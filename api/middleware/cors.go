package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the permissive policy the browser-facing relay surface needs:
// uploads come straight from web clients on arbitrary origins.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "apikey", "x-client-info"},
		MaxAge:         300,
	}).Handler
}
