package analytics

import (
	"errors"
	"net/http"
	"strconv"

	httperr "github.com/datahub-lab/datahub/internal/core/errors"
	"github.com/datahub-lab/datahub/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the analytics read-only API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/datasets/:dataset_id/stats", s.HandleDatasetStats)
	r.GET("/v1/users/:user_id/downloads", s.HandleUserHistory)
	r.GET("/v1/stats/platform", s.HandlePlatformStats)
}

// HandleDatasetStats handles GET /v1/datasets/:dataset_id/stats
func (s *Service) HandleDatasetStats(c *gin.Context) {
	datasetID, ok := pathID(c, "dataset_id")
	if !ok {
		return
	}

	stats, err := s.DatasetStats(c.Request.Context(), datasetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Dataset not found",
			})
			return
		}
		writeInternalError(c, "Failed to compute dataset stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// HandleUserHistory handles GET /v1/users/:user_id/downloads
// Query parameters: limit
func (s *Service) HandleUserHistory(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidInputError,
				Message:   "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	records, err := s.UserHistory(c.Request.Context(), userID, limit)
	if err != nil {
		writeInternalError(c, "Failed to load download history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   userID,
		"downloads": records,
	})
}

// HandlePlatformStats handles GET /v1/stats/platform
func (s *Service) HandlePlatformStats(c *gin.Context) {
	stats, err := s.PlatformStats(c.Request.Context())
	if err != nil {
		writeInternalError(c, "Failed to compute platform stats", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   name + " must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func writeInternalError(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   msg,
		Details:   err.Error(),
	})
}
