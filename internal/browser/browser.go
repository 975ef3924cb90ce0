// Package browser projects a flat object store onto folders and files.
//
// Folders only exist as key prefixes ending in "/". A folder created from the
// UI is backed by a zero-byte marker object so that it shows up before anything
// is uploaded into it.
package browser

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/damacus/r2-dashboard/internal/models"
	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/damacus/r2-dashboard/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency   = 8
	DefaultPreviewExpiry = time.Hour
)

// Options configures a Browser
type Options struct {
	BucketName    string
	PublicDomain  string
	Concurrency   int
	PreviewExpiry time.Duration
	// Usage, when set, answers BucketInfo without a full listing
	Usage services.UsageReporter
}

// Browser is the folder view over one bucket
type Browser struct {
	store services.ObjectStore
	opts  Options
	now   func() time.Time
}

func New(store services.ObjectStore, opts Options) *Browser {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PreviewExpiry <= 0 {
		opts.PreviewExpiry = DefaultPreviewExpiry
	}
	return &Browser{store: store, opts: opts, now: time.Now}
}

// BucketName returns the configured bucket name
func (b *Browser) BucketName() string {
	return b.opts.BucketName
}

// ListDirectory returns the folders and files directly under prefix.
// Entries keep the store's order. A prefix without a trailing "/" names the
// folder itself, so "docs" lists the same level as "docs/".
func (b *Browser) ListDirectory(ctx context.Context, prefix string) (models.DirectoryListing, error) {
	prefix = folderPrefix(prefix)
	result, err := b.store.List(ctx, services.ListOptions{
		Prefix:    prefix,
		Delimiter: services.Delimiter,
	})
	if err != nil {
		return models.DirectoryListing{}, err
	}

	listing := models.DirectoryListing{
		Prefix:      prefix,
		Folders:     []models.FolderEntry{},
		Files:       []models.FileEntry{},
		Breadcrumbs: Breadcrumbs(prefix),
	}

	seen := make(map[string]bool)
	for _, cp := range result.CommonPrefixes {
		if seen[cp] {
			continue
		}
		seen[cp] = true
		listing.Folders = append(listing.Folders, models.FolderEntry{
			Type:   models.EntryTypeFolder,
			Name:   strings.TrimSuffix(strings.TrimPrefix(cp, prefix), services.Delimiter),
			Prefix: cp,
		})
	}

	for _, obj := range result.Objects {
		// Markers, including the one for the folder being listed
		if obj.Key == prefix || strings.HasSuffix(obj.Key, services.Delimiter) {
			continue
		}
		listing.Files = append(listing.Files, b.fileEntry(prefix, obj))
	}

	return listing, nil
}

func folderPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, services.Delimiter) {
		return prefix
	}
	return prefix + services.Delimiter
}

func (b *Browser) fileEntry(prefix string, obj services.Object) models.FileEntry {
	contentType := utils.ResolveContentType(obj.ContentType, obj.Key)
	return models.FileEntry{
		Type:          models.EntryTypeFile,
		Name:          strings.TrimPrefix(obj.Key, prefix),
		Key:           obj.Key,
		Size:          obj.Size,
		FormattedSize: utils.FormatFileSize(obj.Size),
		LastModified:  obj.LastModified,
		URL:           b.PublicURL(obj.Key),
		ContentType:   contentType,
		IsImage:       utils.IsImageType(contentType),
		IsPreviewable: utils.IsPreviewable(contentType, obj.Size),
	}
}

// PublicURL returns the public address of key, or "" without a public domain
func (b *Browser) PublicURL(key string) string {
	domain := strings.TrimSuffix(b.opts.PublicDomain, "/")
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	return domain + "/" + key
}

// Breadcrumbs splits prefix into one crumb per folder level
func Breadcrumbs(prefix string) []models.Breadcrumb {
	breadcrumbs := []models.Breadcrumb{}
	path := ""
	for _, part := range strings.Split(prefix, services.Delimiter) {
		if part == "" {
			continue
		}
		path += part + services.Delimiter
		breadcrumbs = append(breadcrumbs, models.Breadcrumb{
			Name:   part,
			Prefix: path,
		})
	}
	return breadcrumbs
}

// UploadFile is one file of an upload request
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadFiles stores each file at prefix+name, overwriting existing objects.
// Every file is attempted; a *BatchError is returned when any of them failed.
func (b *Browser) UploadFiles(ctx context.Context, prefix string, files []UploadFile) (BatchResult, error) {
	if len(files) == 0 {
		return BatchResult{}, &ValidationError{Message: "No files uploaded"}
	}
	for _, f := range files {
		if f.Name == "" {
			return BatchResult{}, &ValidationError{Message: "File name is required"}
		}
	}

	errs := make([]error, len(files))
	g := new(errgroup.Group)
	g.SetLimit(b.opts.Concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			key := prefix + f.Name
			errs[i] = b.store.Put(ctx, key, f.Body, f.Size, utils.ResolveContentType(f.ContentType, f.Name))
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, f := range files {
		key := prefix + f.Name
		if errs[i] != nil {
			result.Failed = append(result.Failed, services.KeyError{Key: key, Err: errs[i]})
			continue
		}
		result.Succeeded = append(result.Succeeded, key)
	}

	if len(result.Failed) > 0 {
		log.Printf("Upload to %q: %d stored, %d failed", prefix, len(result.Succeeded), len(result.Failed))
	}
	return result, result.err("upload")
}

// DeleteFile removes a single object. Missing keys are not an error.
func (b *Browser) DeleteFile(ctx context.Context, key string) error {
	if key == "" {
		return &ValidationError{Message: "Key is required"}
	}
	return b.store.Delete(ctx, key)
}

// DeleteFolder removes every object under prefix, nested markers included.
// An empty prefix is refused so the whole bucket cannot be wiped by accident.
func (b *Browser) DeleteFolder(ctx context.Context, prefix string) (BatchResult, error) {
	if prefix == "" {
		return BatchResult{}, &ValidationError{Message: "Prefix is required"}
	}

	result, err := b.store.List(ctx, services.ListOptions{Prefix: prefix})
	if err != nil {
		return BatchResult{}, err
	}
	if len(result.Objects) == 0 {
		return BatchResult{}, nil
	}

	keys := make([]string, 0, len(result.Objects))
	for _, obj := range result.Objects {
		keys = append(keys, obj.Key)
	}

	var batch BatchResult
	if deleter, ok := b.store.(services.BatchDeleter); ok {
		failed, err := deleter.DeleteMany(ctx, keys)
		if err != nil {
			return BatchResult{}, err
		}
		batch = splitFailed(keys, failed)
	} else {
		batch = b.deleteEach(ctx, keys)
	}

	log.Printf("Deleted folder %q: %d removed, %d failed", prefix, len(batch.Succeeded), len(batch.Failed))
	return batch, batch.err("delete folder")
}

func (b *Browser) deleteEach(ctx context.Context, keys []string) BatchResult {
	var (
		mu     sync.Mutex
		failed []services.KeyError
	)
	g := new(errgroup.Group)
	g.SetLimit(b.opts.Concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := b.store.Delete(ctx, key); err != nil {
				mu.Lock()
				failed = append(failed, services.KeyError{Key: key, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return splitFailed(keys, failed)
}

// splitFailed keeps keys in their listed order
func splitFailed(keys []string, failed []services.KeyError) BatchResult {
	if len(failed) == 0 {
		return BatchResult{Succeeded: keys}
	}
	failedKeys := make(map[string]bool, len(failed))
	for _, f := range failed {
		failedKeys[f.Key] = true
	}

	result := BatchResult{}
	for _, key := range keys {
		if !failedKeys[key] {
			result.Succeeded = append(result.Succeeded, key)
		}
	}
	for _, key := range keys {
		for _, f := range failed {
			if f.Key == key {
				result.Failed = append(result.Failed, f)
				break
			}
		}
	}
	return result
}

// CreateFolder writes the marker object prefix+name+"/" and returns its key.
// Creating an existing folder rewrites the same marker.
func (b *Browser) CreateFolder(ctx context.Context, name, prefix string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Message: "Folder name is required"}
	}

	key := prefix + name + services.Delimiter
	if err := b.store.Put(ctx, key, strings.NewReader(""), 0, utils.FolderContentType); err != nil {
		return "", err
	}
	return key, nil
}

// BucketInfo counts every object in the bucket
func (b *Browser) BucketInfo(ctx context.Context) (models.BucketInfo, error) {
	info := models.BucketInfo{
		BucketName: b.opts.BucketName,
		Domain:     b.opts.PublicDomain,
	}

	if b.opts.Usage != nil {
		objects, size, err := b.opts.Usage.BucketUsage(ctx, b.opts.BucketName)
		if err == nil {
			info.TotalObjects = objects
			info.TotalBytes = size
			info.TotalSize = utils.FormatBytes(size)
			return info, nil
		}
		log.Printf("Bucket usage unavailable, falling back to listing: %v", err)
	}

	result, err := b.store.List(ctx, services.ListOptions{})
	if err != nil {
		return models.BucketInfo{}, err
	}
	for _, obj := range result.Objects {
		info.TotalObjects++
		if obj.Size > 0 {
			info.TotalBytes += uint64(obj.Size)
		}
	}
	info.TotalSize = utils.FormatBytes(info.TotalBytes)
	return info, nil
}

// TestConnection lists at most one key and reports how many came back
func (b *Browser) TestConnection(ctx context.Context) (int, error) {
	result, err := b.store.List(ctx, services.ListOptions{MaxKeys: 1})
	if err != nil {
		return 0, err
	}
	return len(result.Objects) + len(result.CommonPrefixes), nil
}

// Preview is a temporary download link
type Preview struct {
	URL       string
	ExpiresAt time.Time
	ExpiresIn string
}

// PreviewURL presigns a GET for key valid for the configured expiry
func (b *Browser) PreviewURL(ctx context.Context, key string) (Preview, error) {
	if key == "" {
		return Preview{}, &ValidationError{Message: "Key is required"}
	}
	presigner, ok := b.store.(services.Presigner)
	if !ok {
		return Preview{}, &services.StoreError{
			Op:      "presign",
			Key:     key,
			Code:    services.CodeNotImplemented,
			Message: "this storage backend cannot presign URLs",
		}
	}

	expires := b.opts.PreviewExpiry
	url, err := presigner.PresignGet(ctx, key, expires)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		URL:       url,
		ExpiresAt: b.now().Add(expires),
		ExpiresIn: utils.FormatExpiration(expires),
	}, nil
}
