package middleware

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets a dashboard served from another origin call the API
func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type"}
	config.MaxAge = 12 * time.Hour
	return cors.New(config)
}
