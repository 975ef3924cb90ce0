package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/damacus/r2-dashboard/internal/browser"
	"github.com/damacus/r2-dashboard/internal/renderer"
	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, store services.ObjectStore) *echo.Echo {
	t.Helper()
	b := browser.New(store, browser.Options{BucketName: "drafts", PublicDomain: "https://drafts.example.com"})
	api := NewAPIHandler(b, "https://acct.r2.cloudflarestorage.com", UploadLimits{MaxFiles: 3, MaxFileBytes: 1024})
	pages := NewPagesHandler(b, 3)

	e := echo.New()
	e.Renderer = renderer.New()
	e.GET("/", pages.Browse)
	e.GET("/partials/listing", pages.Listing)
	e.GET("/api/list", api.List)
	e.POST("/api/upload", api.Upload)
	e.DELETE("/api/delete/*", api.DeleteFile)
	e.DELETE("/api/delete-folder", api.DeleteFolder)
	e.POST("/api/create-folder", api.CreateFolder)
	e.GET("/api/download-folder/*", api.DownloadFolder)
	e.GET("/api/preview/*", api.Preview)
	e.GET("/api/bucket-info", api.BucketInfo)
	e.GET("/api/test-connection", api.TestConnection)
	return e
}

func seedStore(t *testing.T, objects map[string]string) *services.MemoryStore {
	t.Helper()
	store := services.NewMemoryStore()
	for key, body := range objects {
		require.NoError(t, store.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), ""))
	}
	return store
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func multipartBody(t *testing.T, field string, prefix string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if prefix != "" {
		require.NoError(t, w.WriteField("prefix", prefix))
	}
	for name, content := range files {
		part, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAPI_List(t *testing.T) {
	store := seedStore(t, map[string]string{
		"docs/readme.md":    "0123456789",
		"docs/img/":         "",
		"docs/img/logo.png": "png",
	})
	e := newTestServer(t, store)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/list?prefix=docs/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "docs/", body["prefix"])

	folders := body["folders"].([]interface{})
	require.Len(t, folders, 1)
	assert.Equal(t, "img", folders[0].(map[string]interface{})["name"])

	files := body["files"].([]interface{})
	require.Len(t, files, 1)
	file := files[0].(map[string]interface{})
	assert.Equal(t, "docs/readme.md", file["key"])
	assert.Equal(t, float64(10), file["size"])
	assert.Equal(t, "https://drafts.example.com/docs/readme.md", file["url"])
}

func TestAPI_ListEmptyBucketUsesArrays(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/list", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"folders":[]`)
	assert.Contains(t, rec.Body.String(), `"files":[]`)
}

func TestAPI_Upload(t *testing.T) {
	store := services.NewMemoryStore()
	e := newTestServer(t, store)

	body, contentType := multipartBody(t, "files", "docs/", map[string]string{"a.txt": "hello", "b.txt": "world"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := do(e, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, "Successfully uploaded 2 file(s)", resp["message"])
	assert.ElementsMatch(t, []interface{}{"docs/a.txt", "docs/b.txt"}, resp["uploaded"])
	assert.Equal(t, 2, store.Len())
}

func TestAPI_UploadAcceptsBracketFieldName(t *testing.T) {
	store := services.NewMemoryStore()
	e := newTestServer(t, store)

	body, contentType := multipartBody(t, "files[]", "", map[string]string{"x.txt": "x"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := do(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, store.Len())
}

func TestAPI_UploadLimits(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	t.Run("too many files", func(t *testing.T) {
		body, contentType := multipartBody(t, "files", "", map[string]string{"1": "a", "2": "b", "3": "c", "4": "d"})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := do(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeJSON(t, rec)["message"], "Too many files")
	})

	t.Run("file too large", func(t *testing.T) {
		body, contentType := multipartBody(t, "files", "", map[string]string{"big.bin": strings.Repeat("x", 2048)})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := do(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeJSON(t, rec)["message"], "big.bin exceeds")
	})

	t.Run("no files", func(t *testing.T) {
		body, contentType := multipartBody(t, "files", "docs/", nil)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set(echo.HeaderContentType, contentType)
		rec := do(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No files uploaded", decodeJSON(t, rec)["message"])
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := do(e, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_DeleteFileDecodesKey(t *testing.T) {
	store := seedStore(t, map[string]string{"docs/My File.txt": "x", "keep.txt": "y"})
	e := newTestServer(t, store)

	rec := do(e, httptest.NewRequest(http.MethodDelete, "/api/delete/docs/My%20File.txt", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File deleted successfully", decodeJSON(t, rec)["message"])
	assert.Equal(t, 1, store.Len())
}

func TestAPI_DeleteFolder(t *testing.T) {
	store := seedStore(t, map[string]string{
		"docs/":      "",
		"docs/a.txt": "a",
		"docs/b/c":   "c",
		"other":      "o",
	})
	e := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodDelete, "/api/delete-folder", strings.NewReader(`{"prefix":"docs/"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(e, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), decodeJSON(t, rec)["deleted"])
	assert.Equal(t, 1, store.Len())
}

func TestAPI_DeleteFolderFromQuery(t *testing.T) {
	store := seedStore(t, map[string]string{"tmp/a": "a"})
	e := newTestServer(t, store)

	rec := do(e, httptest.NewRequest(http.MethodDelete, "/api/delete-folder?prefix=tmp/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, store.Len())
}

func TestAPI_DeleteFolderRequiresPrefix(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	req := httptest.NewRequest(http.MethodDelete, "/api/delete-folder", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(e, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Prefix is required", decodeJSON(t, rec)["message"])
}

func TestAPI_CreateFolder(t *testing.T) {
	store := services.NewMemoryStore()
	e := newTestServer(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/create-folder", strings.NewReader(`{"folderName":"  New Folder ","prefix":"docs/"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "docs/New Folder/", decodeJSON(t, rec)["key"])
}

func TestAPI_CreateFolderBlankName(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/api/create-folder", strings.NewReader(`{"folderName":"   "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := do(e, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Folder name is required", decodeJSON(t, rec)["message"])
}

func TestAPI_DownloadFolder(t *testing.T) {
	store := seedStore(t, map[string]string{
		"proj/a.txt":     "alpha",
		"proj/sub/b.txt": "beta",
	})
	e := newTestServer(t, store)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/download-folder/proj/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="proj.zip"`, rec.Header().Get(echo.HeaderContentDisposition))

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Name == "a.txt" {
			rc, err := f.Open()
			require.NoError(t, err)
			content, _ := io.ReadAll(rc)
			_ = rc.Close()
			assert.Equal(t, "alpha", string(content))
		}
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, names)
}

func TestAPI_DownloadFolderList(t *testing.T) {
	store := seedStore(t, map[string]string{
		"proj/a.txt":     "alpha",
		"proj/.DS_Store": "junk",
		"proj/sub/b.txt": "beta",
		"proj/sub/c.tmp": "tmp",
	})
	e := newTestServer(t, store)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/download-folder/proj/?list=1&exclude=**.DS_Store&exclude=**.tmp", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "proj", body["folderName"])
	assert.Len(t, body["files"], 2)
}

func TestAPI_DownloadFolderEmpty(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/download-folder/nothing/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Folder is empty or does not exist", decodeJSON(t, rec)["message"])
}

func TestAPI_PreviewUnsupportedBackend(t *testing.T) {
	e := newTestServer(t, seedStore(t, map[string]string{"a.png": "png"}))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/preview/a.png", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, services.CodeNotImplemented, body["code"])
	assert.Contains(t, body["message"], "Preview failed: ")
}

func TestAPI_BucketInfo(t *testing.T) {
	e := newTestServer(t, seedStore(t, map[string]string{"a": strings.Repeat("a", 2048)}))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/bucket-info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "drafts", body["bucketName"])
	assert.Equal(t, float64(1), body["totalObjects"])
	assert.Equal(t, "2.0 KB", body["totalSize"])
}

func TestAPI_TestConnection(t *testing.T) {
	e := newTestServer(t, seedStore(t, map[string]string{"a": "1"}))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/test-connection", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, "Connection successful", body["message"])
	assert.Equal(t, float64(1), body["objectCount"])
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", body["endpoint"])
}

func TestPages_BrowseRendersListing(t *testing.T) {
	e := newTestServer(t, seedStore(t, map[string]string{
		"docs/readme.md":    "hello",
		"docs/img/logo.png": "png",
	}))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/?prefix=docs/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "readme.md")
	assert.Contains(t, html, "img")
	assert.NotContains(t, html, "logo.png")
}

func TestPages_ListingPartial(t *testing.T) {
	e := newTestServer(t, services.NewMemoryStore())

	rec := do(e, httptest.NewRequest(http.MethodGet, "/partials/listing", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "This folder is empty")
	assert.NotContains(t, rec.Body.String(), "<html")
}
