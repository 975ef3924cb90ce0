package handlers

import (
	"errors"
	"net/http"

	"github.com/damacus/r2-dashboard/internal/browser"
	"github.com/damacus/r2-dashboard/internal/models"
	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/damacus/r2-dashboard/internal/utils"
	"github.com/labstack/echo/v4"
)

// PagesHandler renders the HTML browser
type PagesHandler struct {
	browser        *browser.Browser
	maxUploadFiles int
}

func NewPagesHandler(b *browser.Browser, maxUploadFiles int) *PagesHandler {
	return &PagesHandler{browser: b, maxUploadFiles: maxUploadFiles}
}

// PageError is shown on the page when the listing failed
type PageError struct {
	Message string
	Code    string
}

// Browse renders the folder given by ?prefix=. Store failures still render
// the page, with the error in place of the listing.
func (h *PagesHandler) Browse(c echo.Context) error {
	prefix := c.QueryParam("prefix")
	listing, err := h.browser.ListDirectory(c.Request().Context(), prefix)

	status := http.StatusOK
	var pageErr *PageError
	if err != nil {
		status = statusFor(err)
		pageErr = &PageError{Message: err.Error()}
		var storeErr *services.StoreError
		if errors.As(err, &storeErr) {
			pageErr.Code = storeErr.Code
		}
		listing = models.DirectoryListing{
			Prefix:      prefix,
			Breadcrumbs: browser.Breadcrumbs(prefix),
		}
	}

	return c.Render(status, "browser", map[string]interface{}{
		"BucketName":     h.browser.BucketName(),
		"Listing":        listing,
		"Error":          pageErr,
		"User":           c.Get(utils.ContextKeyUser),
		"MaxUploadFiles": h.maxUploadFiles,
	})
}

// Listing renders only the table for htmx refreshes
func (h *PagesHandler) Listing(c echo.Context) error {
	listing, err := h.browser.ListDirectory(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return echo.NewHTTPError(statusFor(err), "Failed to list objects: "+err.Error())
	}
	return c.Render(http.StatusOK, "listing", map[string]interface{}{
		"Listing": listing,
	})
}
