package files

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	httperr "github.com/datahub-lab/datahub/internal/core/errors"
	"github.com/datahub-lab/datahub/internal/core/storage"
)

// userHeader carries the authenticated user's id, set by the gateway.
const userHeader = "X-User-ID"

// RegisterRoutes registers the download delivery routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/datasets/:dataset_id/download", s.HandleDatasetDownload)
	r.GET("/v1/datasets/:dataset_id/files/:file_id/download", s.HandleFileDownload)
}

// HandleDatasetDownload handles GET /v1/datasets/:dataset_id/download
func (s *Service) HandleDatasetDownload(c *gin.Context) {
	userID, ok := headerUserID(c)
	if !ok {
		return
	}
	datasetID, ok := pathID(c, "dataset_id")
	if !ok {
		return
	}

	delivery, err := s.DeliverDataset(c.Request.Context(), userID, datasetID)
	if err != nil {
		writeDeliveryError(c, "Dataset archive not found", err)
		return
	}

	writeDelivery(c, delivery)
}

// HandleFileDownload handles GET /v1/datasets/:dataset_id/files/:file_id/download
func (s *Service) HandleFileDownload(c *gin.Context) {
	userID, ok := headerUserID(c)
	if !ok {
		return
	}
	datasetID, ok := pathID(c, "dataset_id")
	if !ok {
		return
	}
	fileID, ok := pathID(c, "file_id")
	if !ok {
		return
	}

	delivery, err := s.DeliverFile(c.Request.Context(), userID, datasetID, fileID)
	if err != nil {
		writeDeliveryError(c, "File not found in dataset", err)
		return
	}

	writeDelivery(c, delivery)
}

// writeDelivery responds with the delivery as JSON, or as a 302 to the
// presigned URL when the caller asked for a browser-style redirect.
func writeDelivery(c *gin.Context, delivery *Delivery) {
	if c.Query("redirect") == "true" {
		c.Redirect(http.StatusFound, delivery.DownloadURL)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

func headerUserID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(userHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   userHeader + " header is required",
		})
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidInputError,
			Message:   userHeader + " must be a positive integer",
		})
		return 0, false
	}
	return id, true
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

func writeDeliveryError(c *gin.Context, notFoundMsg string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   notFoundMsg,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   "Failed to issue download URL",
		Details:   err.Error(),
	})
}
