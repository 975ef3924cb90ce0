// Package models contains data structures used across handlers
package models

import "time"

// Entry types reported in listings
const (
	EntryTypeFile   = "file"
	EntryTypeFolder = "folder"
)

// FileEntry represents a stored object with display metadata
type FileEntry struct {
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	Key           string    `json:"key"`
	Size          int64     `json:"size"`
	FormattedSize string    `json:"formattedSize"`
	LastModified  time.Time `json:"lastModified"`
	URL           string    `json:"url,omitempty"`
	ContentType   string    `json:"contentType"`
	IsImage       bool      `json:"isImage"`
	IsPreviewable bool      `json:"isPreviewable"`
}

// FolderEntry represents a folder (common prefix)
type FolderEntry struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// Breadcrumb for navigation
type Breadcrumb struct {
	Name   string `json:"name"`
	Prefix string `json:"prefix"`
}

// DirectoryListing is one level of the folder view
type DirectoryListing struct {
	Prefix      string        `json:"prefix"`
	Folders     []FolderEntry `json:"folders"`
	Files       []FileEntry   `json:"files"`
	Breadcrumbs []Breadcrumb  `json:"breadcrumbs"`
}

// BucketInfo summarizes the whole bucket
type BucketInfo struct {
	BucketName   string `json:"bucketName"`
	TotalObjects uint64 `json:"totalObjects"`
	TotalSize    string `json:"totalSize"`
	TotalBytes   uint64 `json:"totalBytes"`
	Domain       string `json:"domain,omitempty"`
}
