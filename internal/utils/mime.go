package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FolderContentType marks zero-byte folder placeholder objects
const FolderContentType = "application/x-directory"

// DefaultContentType is what stores report when nothing better is known
const DefaultContentType = "application/octet-stream"

// maxPreviewSize limits inline previews to files under 10MB
const maxPreviewSize = 10 * 1024 * 1024

var extContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".xml":  "application/xml",
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
}

// ContentTypeFromExt guesses a content type from the file extension
func ContentTypeFromExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extContentTypes[ext]; ok {
		return t
	}
	return DefaultContentType
}

// ResolveContentType keeps a specific declared type and falls back to the
// extension for empty or generic ones.
func ResolveContentType(declared, filename string) string {
	if declared == "" || declared == DefaultContentType {
		return ContentTypeFromExt(filename)
	}
	return declared
}

func IsImageType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

func IsTextType(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/json" ||
		contentType == "application/xml" ||
		contentType == "application/javascript"
}

func IsVideoType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}

func IsPreviewable(contentType string, size int64) bool {
	if size > maxPreviewSize {
		return false
	}
	return IsImageType(contentType) || IsTextType(contentType) || IsVideoType(contentType) ||
		contentType == "application/pdf"
}

// FormatExpiration renders a duration as "1 hour", "3 days" and so on
func FormatExpiration(d time.Duration) string {
	if d >= 24*time.Hour {
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d >= time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	minutes := int(d.Minutes())
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
