package handlers

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/damacus/r2-dashboard/internal/browser"
	"github.com/damacus/r2-dashboard/internal/models"
	"github.com/damacus/r2-dashboard/internal/utils"
	"github.com/labstack/echo/v4"
)

// UploadLimits bounds a single upload request
type UploadLimits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// APIHandler serves the JSON API under /api
type APIHandler struct {
	browser  *browser.Browser
	endpoint string
	limits   UploadLimits
}

func NewAPIHandler(b *browser.Browser, endpoint string, limits UploadLimits) *APIHandler {
	return &APIHandler{browser: b, endpoint: endpoint, limits: limits}
}

type listResponse struct {
	Success bool `json:"success"`
	models.DirectoryListing
}

// List returns one folder level as JSON
func (h *APIHandler) List(c echo.Context) error {
	listing, err := h.browser.ListDirectory(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return respondError(c, "List", err)
	}
	return c.JSON(http.StatusOK, listResponse{Success: true, DirectoryListing: listing})
}

type uploadResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Uploaded []string `json:"uploaded"`
}

// Upload stores every file of a multipart request under the "prefix" field.
// Files may be sent as "files" or "files[]".
func (h *APIHandler) Upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, "Upload", echo.NewHTTPError(http.StatusBadRequest, "Invalid upload form: "+err.Error()))
	}

	prefix := ""
	if values := form.Value["prefix"]; len(values) > 0 {
		prefix = values[0]
	}

	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["files[]"]...)
	if h.limits.MaxFiles > 0 && len(headers) > h.limits.MaxFiles {
		return respondError(c, "Upload", echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("Too many files: at most %d per upload", h.limits.MaxFiles)))
	}
	for _, fh := range headers {
		if h.limits.MaxFileBytes > 0 && fh.Size > h.limits.MaxFileBytes {
			return respondError(c, "Upload", echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("%s exceeds the %s upload limit", fh.Filename, utils.FormatFileSize(h.limits.MaxFileBytes))))
		}
	}

	files, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		return respondError(c, "Upload", err)
	}

	result, err := h.browser.UploadFiles(c.Request().Context(), prefix, files)
	if err != nil {
		return respondError(c, "Upload", err)
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Success:  true,
		Message:  fmt.Sprintf("Successfully uploaded %d file(s)", len(result.Succeeded)),
		Uploaded: result.Succeeded,
	})
}

func openUploads(headers []*multipart.FileHeader) ([]browser.UploadFile, func(), error) {
	var opened []io.Closer
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	files := make([]browser.UploadFile, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("opening %s: %w", fh.Filename, err)
		}
		opened = append(opened, src)
		files = append(files, browser.UploadFile{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        src,
		})
	}
	return files, closeAll, nil
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// DeleteFile removes the object named by the wildcard path
func (h *APIHandler) DeleteFile(c echo.Context) error {
	key := wildcardParam(c)
	if err := h.browser.DeleteFile(c.Request().Context(), key); err != nil {
		return respondError(c, "Delete", err)
	}
	return c.JSON(http.StatusOK, messageResponse{Success: true, Message: "File deleted successfully"})
}

type deleteFolderRequest struct {
	Prefix string `json:"prefix" query:"prefix"`
}

type deleteFolderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

// DeleteFolder removes everything under the prefix given in the JSON body
// or the query string.
func (h *APIHandler) DeleteFolder(c echo.Context) error {
	var req deleteFolderRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, "Delete folder", err)
	}

	result, err := h.browser.DeleteFolder(c.Request().Context(), req.Prefix)
	if err != nil {
		return respondError(c, "Delete folder", err)
	}
	return c.JSON(http.StatusOK, deleteFolderResponse{
		Success: true,
		Message: "Folder deleted successfully",
		Deleted: len(result.Succeeded),
	})
}

type createFolderRequest struct {
	FolderName string `json:"folderName" form:"folderName"`
	Prefix     string `json:"prefix" form:"prefix"`
}

type createFolderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Key     string `json:"key"`
}

// CreateFolder writes a folder marker
func (h *APIHandler) CreateFolder(c echo.Context) error {
	var req createFolderRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, "Create folder", err)
	}

	key, err := h.browser.CreateFolder(c.Request().Context(), req.FolderName, req.Prefix)
	if err != nil {
		return respondError(c, "Create folder", err)
	}
	return c.JSON(http.StatusOK, createFolderResponse{
		Success: true,
		Message: "Folder created successfully",
		Key:     key,
	})
}

type archiveListResponse struct {
	Success    bool                  `json:"success"`
	FolderName string                `json:"folderName"`
	Files      []browser.ArchiveFile `json:"files"`
}

// DownloadFolder streams the folder as a zip. With ?list=1 it returns the
// entries that would be archived instead.
func (h *APIHandler) DownloadFolder(c echo.Context) error {
	ctx := c.Request().Context()
	prefix := wildcardParam(c)

	archive, err := h.browser.PlanArchive(ctx, prefix, browser.ArchiveOptions{
		Exclude: c.QueryParams()["exclude"],
	})
	if err != nil {
		return respondError(c, "Download", err)
	}

	if c.QueryParam("list") == "1" {
		return c.JSON(http.StatusOK, archiveListResponse{
			Success:    true,
			FolderName: archive.Name,
			Files:      archive.Files(),
		})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/zip")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", archive.FileName()))
	res.WriteHeader(http.StatusOK)

	if _, err := archive.Stream(ctx, res); err != nil {
		// Headers are gone; all we can do is cut the response short
		log.Printf("Archive %s aborted: %v", archive.FileName(), err)
	}
	return nil
}

type previewResponse struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
	ExpiresIn string `json:"expiresIn"`
}

// Preview returns a presigned URL for the object named by the wildcard path
func (h *APIHandler) Preview(c echo.Context) error {
	key := wildcardParam(c)
	preview, err := h.browser.PreviewURL(c.Request().Context(), key)
	if err != nil {
		return respondError(c, "Preview", err)
	}
	return c.JSON(http.StatusOK, previewResponse{
		Success:   true,
		URL:       preview.URL,
		ExpiresAt: preview.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresIn: preview.ExpiresIn,
	})
}

type bucketInfoResponse struct {
	Success bool `json:"success"`
	models.BucketInfo
}

func (h *APIHandler) BucketInfo(c echo.Context) error {
	info, err := h.browser.BucketInfo(c.Request().Context())
	if err != nil {
		return respondError(c, "Get bucket info", err)
	}
	return c.JSON(http.StatusOK, bucketInfoResponse{Success: true, BucketInfo: info})
}

type connectionResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	BucketName  string `json:"bucketName"`
	ObjectCount int    `json:"objectCount"`
	Endpoint    string `json:"endpoint"`
}

// TestConnection lists a single key to prove the credentials work
func (h *APIHandler) TestConnection(c echo.Context) error {
	count, err := h.browser.TestConnection(c.Request().Context())
	if err != nil {
		return respondError(c, "Connection test", err)
	}
	return c.JSON(http.StatusOK, connectionResponse{
		Success:     true,
		Message:     "Connection successful",
		BucketName:  h.browser.BucketName(),
		ObjectCount: count,
		Endpoint:    h.endpoint,
	})
}
