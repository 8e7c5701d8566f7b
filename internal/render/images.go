package render

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
	"github.com/timmy/pagepipe/internal/storage"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// ImageDirRenderer takes a directory of pre-rendered page images, one file
// per page, ordered by natural file name order.
type ImageDirRenderer struct {
	storage  storage.ObjectStorage
	maxPages int
}

// NewImageDirRenderer creates an ImageDirRenderer.
func NewImageDirRenderer(objectStorage storage.ObjectStorage, maxPages int) *ImageDirRenderer {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &ImageDirRenderer{storage: objectStorage, maxPages: maxPages}
}

func (r *ImageDirRenderer) RenderPages(ctx context.Context, doc Document) ([]domain.PageInput, error) {
	ctx = logger.SetJobID(ctx, doc.JobID)

	entries, err := os.ReadDir(doc.Path)
	if err != nil {
		return nil, renderError(doc, fmt.Errorf("failed to read directory: %w", err))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, renderError(doc, fmt.Errorf("no page images found"))
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })

	if len(names) > r.maxPages {
		logger.With(logger.Fields{
			logger.FieldCount: len(names),
			"max_pages":       r.maxPages,
		}).Warn(ctx, "Document exceeds page limit, truncating")
		names = names[:r.maxPages]
	}

	// Validate every page before uploading anything.
	mimeTypes := make([]string, len(names))
	for i, name := range names {
		format, err := imageFormat(filepath.Join(doc.Path, name))
		if err != nil {
			return nil, renderError(doc, fmt.Errorf("page %d (%s): %w", i+1, name, err))
		}
		mimeTypes[i] = "image/" + format
	}

	inputs := make([]domain.PageInput, len(names))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)
	for i, name := range names {
		pageNumber := i + 1
		ext := strings.ToLower(filepath.Ext(name))
		key := storage.PageKey(doc.JobID, pageNumber, ext)
		inputs[i] = domain.PageInput{
			JobID:      doc.JobID,
			PageNumber: pageNumber,
			StorageKey: key,
			MIMEType:   mimeTypes[i],
		}
		eg.Go(func() error {
			if err := uploadFile(gctx, r.storage, filepath.Join(doc.Path, name), key, mimeTypes[i]); err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, renderError(doc, err)
	}

	logger.With(logger.Fields{logger.FieldCount: len(inputs)}).Info(ctx, "Page images collected")
	return inputs, nil
}

func imageFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	return format, nil
}
