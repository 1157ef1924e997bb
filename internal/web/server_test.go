package web

import (
	"bytes"
	"encoding/json"
	"image"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogomez23/image-size-reducer/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Web.UploadDirectory = filepath.Join(t.TempDir(), "uploads")
	cfg.Web.OutputDirectory = filepath.Join(t.TempDir(), "outputs")

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(cfg, log)
}

func noisePNG(t *testing.T, w, h int, seed int64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, content []byte, maxSize string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fw, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)

	if maxSize != "" {
		require.NoError(t, mw.WriteField("max_size", maxSize))
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStatusIdle(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestUploadReducesImage(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartUpload(t, "photo.png", noisePNG(t, 120, 90, 1), "1")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []UploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)

	result := resp.Results[0]
	assert.Empty(t, result.Error)
	assert.Equal(t, "photo.png", result.OriginalFilename)
	assert.NotEmpty(t, result.OutputFilename)
	require.NotEmpty(t, result.DownloadURL)

	// The uploaded input must not linger after processing.
	entries, err := os.ReadDir(s.cfg.Web.UploadDirectory)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The reduced output is downloadable.
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, result.DownloadURL, nil))
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.NotZero(t, rec2.Body.Len())

	decoded, err := imaging.Decode(bytes.NewReader(rec2.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, result.FinalDimensions.Width, decoded.Bounds().Dx())
	assert.Equal(t, result.FinalDimensions.Height, decoded.Bounds().Dy())
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartUpload(t, "notes.txt", []byte("hello"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []UploadResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "unsupported file extension", resp.Results[0].Error)
}

func TestUploadRejectsBadBudget(t *testing.T) {
	s := newTestServer(t)

	body, contentType := multipartUpload(t, "photo.png", noisePNG(t, 16, 16, 2), "9999")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadMissing(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download/absent.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadAllZip(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, os.MkdirAll(s.cfg.Web.OutputDirectory, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Web.OutputDirectory, "a.jpg"), []byte("aaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.Web.OutputDirectory, "b.jpg"), []byte("bbbb"), 0644))

	payload, err := json.Marshal(map[string][]string{"filenames": {"a.jpg", "b.jpg", "missing.jpg"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/download-all", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)

	names := []string{zr.File[0].Name, zr.File[1].Name}
	assert.Contains(t, names, "a.jpg")
	assert.Contains(t, names, "b.jpg")
}

func TestReduceRequiresInputDirectory(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reduce", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
