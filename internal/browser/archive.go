package browser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/gobwas/glob"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"
)

// ArchiveOptions narrows what goes into a folder archive
type ArchiveOptions struct {
	// Exclude holds glob patterns matched against paths relative to the
	// folder. "*" stays within one level, "**" crosses levels.
	Exclude []string
}

// ArchiveFile is one planned zip entry
type ArchiveFile struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ArchiveResult reports what a stream actually contained
type ArchiveResult struct {
	Written []string
	Skipped []services.KeyError
}

// Archive is a planned zip of one folder. Stream writes it.
type Archive struct {
	Name   string
	Prefix string

	files       []ArchiveFile
	store       services.ObjectStore
	concurrency int
}

// PlanArchive lists everything under prefix and decides which objects become
// zip entries. A folder with no objects at all is a *NotFoundError, reported
// before anything is written to the client.
func (b *Browser) PlanArchive(ctx context.Context, prefix string, opts ArchiveOptions) (*Archive, error) {
	excludes := make([]glob.Glob, 0, len(opts.Exclude))
	for _, pattern := range opts.Exclude {
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, validationErrorf("Invalid exclude pattern %q: %v", pattern, err)
		}
		excludes = append(excludes, g)
	}

	result, err := b.store.List(ctx, services.ListOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	if len(result.Objects) == 0 {
		return nil, &NotFoundError{Message: "Folder is empty or does not exist"}
	}

	archive := &Archive{
		Name:        ArchiveName(prefix),
		Prefix:      prefix,
		store:       b.store,
		concurrency: b.opts.Concurrency,
	}
	for _, obj := range result.Objects {
		if strings.HasSuffix(obj.Key, services.Delimiter) {
			continue
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if excluded(excludes, name) {
			continue
		}
		archive.files = append(archive.files, ArchiveFile{
			Key:          obj.Key,
			Name:         name,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return archive, nil
}

func excluded(patterns []glob.Glob, name string) bool {
	for _, g := range patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// ArchiveName is the last folder segment of prefix, or "root"
func ArchiveName(prefix string) string {
	parts := strings.Split(strings.Trim(prefix, services.Delimiter), services.Delimiter)
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return "root"
}

// FileName is the download name of the archive
func (a *Archive) FileName() string {
	return a.Name + ".zip"
}

// Files returns the planned entries
func (a *Archive) Files() []ArchiveFile {
	files := make([]ArchiveFile, len(a.files))
	copy(files, a.files)
	return files
}

type fetchedObject struct {
	file ArchiveFile
	body io.ReadCloser
	err  error
}

// Stream writes the zip to w. Object bodies are fetched by a bounded pool and
// handed to this goroutine, which is the only one touching the zip writer.
// Entries appear in fetch completion order.
//
// Each body is read to the end before its entry is started, so an object that
// cannot be read is logged and left out whole. A failed write to w aborts the
// stream and is returned.
func (a *Archive) Stream(ctx context.Context, w io.Writer) (ArchiveResult, error) {
	var result ArchiveResult

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetched := make(chan fetchedObject)
	go func() {
		g := new(errgroup.Group)
		g.SetLimit(a.concurrency)
		for _, f := range a.files {
			if fetchCtx.Err() != nil {
				break
			}
			f := f
			g.Go(func() error {
				body, err := a.fetch(fetchCtx, f.Key)
				select {
				case fetched <- fetchedObject{file: f, body: body, err: err}:
				case <-fetchCtx.Done():
					if body != nil {
						_ = body.Close()
					}
				}
				return nil
			})
		}
		_ = g.Wait()
		close(fetched)
	}()

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	var fatal error
	for item := range fetched {
		if fatal != nil {
			if item.body != nil {
				_ = item.body.Close()
			}
			continue
		}
		if item.err != nil {
			log.Printf("Archive %s: skipping %s: %v", a.Name, item.file.Key, item.err)
			result.Skipped = append(result.Skipped, services.KeyError{Key: item.file.Key, Err: item.err})
			continue
		}

		if err := a.writeEntry(zw, item); err != nil {
			fatal = err
			cancel()
			continue
		}
		result.Written = append(result.Written, item.file.Key)
	}

	if fatal != nil {
		return result, fatal
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := zw.Close(); err != nil {
		return result, err
	}
	if len(result.Skipped) > 0 {
		log.Printf("Archive %s: %d files written, %d skipped", a.Name, len(result.Written), len(result.Skipped))
	}
	return result, nil
}

func (a *Archive) writeEntry(zw *zip.Writer, item fetchedObject) error {
	defer func() { _ = item.body.Close() }()

	header := &zip.FileHeader{
		Name:     item.file.Name,
		Method:   zip.Deflate,
		Modified: item.file.LastModified,
	}
	entry, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, item.body)
	return err
}

// spoolLimit is how much of one object a fetch worker keeps in memory before
// spilling the rest to a temp file.
var spoolLimit int64 = 8 << 20

func (a *Archive) fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	return spool(body)
}

// spool reads src to the end and returns a replayable copy
func spool(src io.Reader) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, err := io.CopyN(&buf, src, spoolLimit+1)
	if errors.Is(err, io.EOF) {
		return io.NopCloser(&buf), nil
	}
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "r2-archive-*")
	if err != nil {
		return nil, err
	}
	spilled := &tempFile{File: f}
	if _, err := buf.WriteTo(f); err != nil {
		_ = spilled.Close()
		return nil, err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = spilled.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = spilled.Close()
		return nil, err
	}
	return spilled, nil
}

// tempFile removes itself on Close
type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	_ = os.Remove(t.File.Name())
	return err
}
