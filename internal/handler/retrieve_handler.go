package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"bookdex/internal/pkg/errcode"
	apperrors "bookdex/internal/pkg/errors"
	"bookdex/internal/pkg/response"
	"bookdex/internal/retrieval"
)

type RetrieveHandler struct {
	service *retrieval.Service
}

func NewRetrieveHandler(service *retrieval.Service) *RetrieveHandler {
	return &RetrieveHandler{service: service}
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (h *RetrieveHandler) Retrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Query == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	results, err := h.service.Retrieve(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, apperrors.ErrUpstreamUnavailable) || errors.Is(err, apperrors.ErrTimeout) {
			response.Error(c, errcode.ErrUnavailable, "retrieval backend unavailable")
			return
		}
		response.Error(c, errcode.ErrInternal, "retrieval failed")
		return
	}
	// An empty result set is a valid answer, not an error.
	response.Success(c, gin.H{
		"results": results,
		"count":   len(results),
	})
}
