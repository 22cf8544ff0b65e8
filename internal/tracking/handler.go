package tracking

import (
	"errors"
	"log/slog"
	"net/http"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
	httperr "github.com/datahub-lab/datahub/internal/core/errors"
	"github.com/datahub-lab/datahub/internal/core/storage"
	"github.com/gin-gonic/gin"
)

const (
	msgInvalidJSON  = "Invalid JSON body"
	msgRecordFailed = "Failed to record download"
	msgPairNotFound = "User or dataset not found"
	msgInvalidInput = "Invalid download event"
)

// RegisterRoutes registers the download recording routes.
// POST /v1/downloads is the internal endpoint for services that deliver
// dataset content themselves and only need the event recorded.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/downloads", s.RecordHandler)
}

// RecordHandler handles HTTP POST requests recording a download event.
func (s *Service) RecordHandler(c *gin.Context) {
	var req v1.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid JSON body received", "error", err)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgInvalidJSON,
		})
		return
	}

	result, err := s.RecordDownload(c.Request.Context(), req)
	if err != nil {
		writeRecordError(c, req, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func writeRecordError(c *gin.Context, req v1.TrackRequest, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		slog.Warn("Track request validation failed", "error", err)
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   msgInvalidInput,
			Details:   err.Error(),
		})

	case errors.Is(err, storage.ErrNotFound):
		slog.Warn("Download event references missing entity",
			"user_id", req.UserID,
			"dataset_id", req.DatasetID)
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   msgPairNotFound,
		})

	default:
		slog.Error("Failed to record download",
			"error", err,
			"user_id", req.UserID,
			"dataset_id", req.DatasetID)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgRecordFailed,
		})
	}
}
