package handler

import (
	"github.com/gin-gonic/gin"

	"bookdex/internal/index"
	"bookdex/internal/pkg/errcode"
	"bookdex/internal/pkg/response"
)

type HealthHandler struct {
	store index.Store
}

func NewHealthHandler(store index.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Health(c *gin.Context) {
	count, err := h.store.Count(c.Request.Context())
	if err != nil {
		response.Error(c, errcode.ErrUnavailable, "index unavailable")
		return
	}
	response.Success(c, gin.H{
		"status": "ok",
		"chunks": count,
	})
}
