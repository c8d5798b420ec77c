package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pantrychef/internal/auth"
	"pantrychef/internal/logging"
)

// corsConfig allows any origin with the headers browser clients send.
func corsConfig() cors.Config {
	return cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "X-Client-Info", "Apikey", "Content-Type", logging.RequestIDHeader},
		ExposeHeaders:   []string{"Content-Length", logging.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}
}

// allowAnyOrigin sets the wildcard origin on every response, including those
// the CORS middleware skips because no Origin header was sent, and answers
// OPTIONS with 204.
func allowAnyOrigin(cfg cors.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		if h.Get("Access-Control-Allow-Origin") == "" {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		if h.Get("Access-Control-Allow-Methods") == "" {
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
		}
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// NewRouter wires the handler routes behind CORS and authentication.
func NewRouter(h *Handler, authn auth.Authenticator) *gin.Engine {
	r := gin.New()

	cfg := corsConfig()
	r.Use(gin.Recovery(), logging.GinLogger(), cors.New(cfg), allowAnyOrigin(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := r.Group("/", auth.Middleware(authn))
	authed.POST("/generate-recipe", h.GenerateRecipe)
	authed.GET("/recipes", h.ListRecipes)
	authed.GET("/recipes/:id", h.GetRecipe)
	authed.POST("/recipes/:id/favorite", h.ToggleFavorite)
	authed.DELETE("/recipes/:id", h.DeleteRecipe)
	authed.GET("/usage", h.Usage)

	return r
}
