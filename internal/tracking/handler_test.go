package tracking

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/datahub-lab/datahub/internal/api/v1"
	httperr "github.com/datahub-lab/datahub/internal/core/errors"
	"github.com/datahub-lab/datahub/internal/core/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore()
	store.AddDataset(42, "ocean-temps", 10)
	svc := NewService(store, store)

	r := gin.New()
	svc.RegisterRoutes(r)
	return r, store
}

func postDownload(t *testing.T, r *gin.Engine, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/downloads", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRecordHandler_FirstDownload(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(v1.TrackRequest{
		UserID: 7, DatasetID: 42, Kind: v1.KindDataset,
	})
	resp := postDownload(t, r, body)

	require.Equal(t, http.StatusOK, resp.Code)

	var result v1.TrackResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.True(t, result.IsFirstDownload)
	require.Equal(t, int64(1), result.UserTotalDownloads)
	require.Equal(t, int64(11), result.DatasetDownloadCount)
}

func TestRecordHandler_RepeatDownload(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(v1.TrackRequest{
		UserID: 7, DatasetID: 42, Kind: v1.KindDataset,
	})
	require.Equal(t, http.StatusOK, postDownload(t, r, body).Code)

	resp := postDownload(t, r, body)
	require.Equal(t, http.StatusOK, resp.Code)

	var result v1.TrackResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.False(t, result.IsFirstDownload)
	require.Equal(t, int64(2), result.UserTotalDownloads)
	require.Equal(t, int64(11), result.DatasetDownloadCount)
}

func TestRecordHandler_InvalidJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	resp := postDownload(t, r, []byte("not json"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestRecordHandler_InvalidInput(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(v1.TrackRequest{
		UserID: 7, DatasetID: 42, Kind: "archive",
	})
	resp := postDownload(t, r, body)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpInvalidInputError, errResp.ErrorType)
}

func TestRecordHandler_MissingDataset(t *testing.T) {
	r, _ := newTestRouter(t)

	body, _ := json.Marshal(v1.TrackRequest{
		UserID: 7, DatasetID: 404, Kind: v1.KindDataset,
	})
	resp := postDownload(t, r, body)
	require.Equal(t, http.StatusNotFound, resp.Code)

	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	require.Equal(t, httperr.HttpNotFoundError, errResp.ErrorType)
}
