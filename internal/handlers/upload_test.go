package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/mocks"
	"support-dashboard/internal/telemetry"
)

func setupUploadRouter(handler *UploadHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", handler.Upload)
	return r
}

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadSuccess(t *testing.T) {
	store := new(mocks.StoreMock)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.dashboard", "support-dashboard", "test")
	router := setupUploadRouter(NewUploadHandler(store, 1<<20, audit))

	store.On("Save", mock.Anything, "cat.png", mock.Anything).Return("/uploads/abc.png", nil).Once()
	publisher.On("Publish", mock.Anything, "audit.dashboard", mock.Anything, mock.Anything).Return(nil).Once()

	body, contentType := multipartBody(t, "file", "cat.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "/uploads/abc.png", resp["filePath"])

	store.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestUploadMissingFile(t *testing.T) {
	store := new(mocks.StoreMock)
	router := setupUploadRouter(NewUploadHandler(store, 1<<20, nil))

	body, contentType := multipartBody(t, "attachment", "cat.png", []byte("png-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "No file uploaded", resp["message"])
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadNotMultipart(t *testing.T) {
	router := setupUploadRouter(NewUploadHandler(new(mocks.StoreMock), 1<<20, nil))

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	store := new(mocks.StoreMock)
	router := setupUploadRouter(NewUploadHandler(store, 64, nil))

	body, contentType := multipartBody(t, "file", "big.bin", bytes.Repeat([]byte("x"), 1024))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadStoreError(t *testing.T) {
	store := new(mocks.StoreMock)
	router := setupUploadRouter(NewUploadHandler(store, 1<<20, nil))

	store.On("Save", mock.Anything, "notes.txt", mock.Anything).Return("", assert.AnError).Once()

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, false, resp["success"])
	store.AssertExpectations(t)
}
