package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"bookdex/internal/middleware"
)

type RouterDeps struct {
	Retrieve        *RetrieveHandler
	Health          *HealthHandler
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Health)

	limited := api.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimitWindow))
	limited.POST("/retrieve", deps.Retrieve.Retrieve)
}
