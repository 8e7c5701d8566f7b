package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/logger"
	"github.com/timmy/pagepipe/internal/storage"
)

const uploadConcurrency = 8

// PDFSplitter splits a PDF into single-page PDFs and uploads each page to
// object storage.
type PDFSplitter struct {
	storage  storage.ObjectStorage
	maxPages int
	workDir  string
}

// NewPDFSplitter creates a PDFSplitter. Pages beyond maxPages are dropped
// with a warning; workDir "" uses the system temp directory.
func NewPDFSplitter(objectStorage storage.ObjectStorage, maxPages int, workDir string) *PDFSplitter {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PDFSplitter{storage: objectStorage, maxPages: maxPages, workDir: workDir}
}

func (s *PDFSplitter) RenderPages(ctx context.Context, doc Document) ([]domain.PageInput, error) {
	ctx = logger.SetJobID(ctx, doc.JobID)

	tmpDir, err := os.MkdirTemp(s.workDir, "pagepipe-split-*")
	if err != nil {
		return nil, renderError(doc, fmt.Errorf("failed to create work dir: %w", err))
	}
	defer os.RemoveAll(tmpDir)

	optimized := filepath.Join(tmpDir, "document.pdf")
	if err := optimizePDF(doc.Path, optimized); err != nil {
		return nil, renderError(doc, fmt.Errorf("failed to validate PDF: %w", err))
	}

	pageCount, err := api.PageCountFile(optimized)
	if err != nil {
		return nil, renderError(doc, fmt.Errorf("failed to get page count: %w", err))
	}
	if pageCount == 0 {
		return nil, renderError(doc, fmt.Errorf("document has no pages"))
	}
	if pageCount > s.maxPages {
		logger.With(logger.Fields{
			logger.FieldCount: pageCount,
			"max_pages":       s.maxPages,
		}).Warn(ctx, "Document exceeds page limit, truncating")
		pageCount = s.maxPages
	}

	if err := api.SplitFile(optimized, tmpDir, 1, nil); err != nil {
		return nil, renderError(doc, fmt.Errorf("failed to split PDF: %w", err))
	}

	base := strings.TrimSuffix(optimized, filepath.Ext(optimized))
	inputs := make([]domain.PageInput, pageCount)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(uploadConcurrency)
	for i := 1; i <= pageCount; i++ {
		local := fmt.Sprintf("%s_%d.pdf", base, i)
		key := storage.PageKey(doc.JobID, i, ".pdf")
		inputs[i-1] = domain.PageInput{
			JobID:      doc.JobID,
			PageNumber: i,
			StorageKey: key,
			MIMEType:   "application/pdf",
		}
		eg.Go(func() error {
			if err := uploadFile(gctx, s.storage, local, key, "application/pdf"); err != nil {
				return fmt.Errorf("page %d: %w", i, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, renderError(doc, err)
	}

	logger.With(logger.Fields{logger.FieldCount: pageCount}).Info(ctx, "PDF split into pages")
	return inputs, nil
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

func uploadFile(ctx context.Context, objectStorage storage.ObjectStorage, localPath, key, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(localPath), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filepath.Base(localPath), err)
	}
	return objectStorage.Upload(ctx, key, f, info.Size(), contentType)
}
