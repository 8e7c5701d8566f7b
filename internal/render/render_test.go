package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/pagepipe/internal/domain"
	"github.com/timmy/pagepipe/internal/storage"
)

func TestNaturalLess(t *testing.T) {
	names := []string{"page10.png", "page2.png", "Page1.png", "page1a.png", "cover.png"}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	assert.Equal(t, []string{"cover.png", "Page1.png", "page1a.png", "page2.png", "page10.png"}, names)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func newStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestImageDirRendererOrdersAndUploads(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"p10.png", "p2.png", "p1.png"} {
		writePNG(t, filepath.Join(dir, name))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	store := newStorage(t)
	r := NewImageDirRenderer(store, 0)

	inputs, err := r.RenderPages(context.Background(), Document{JobID: "job", Name: "scan", Path: dir})
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	require.NoError(t, domain.ValidateSequence(inputs))

	for _, in := range inputs {
		assert.Equal(t, "job", in.JobID)
		assert.Equal(t, "image/png", in.MIMEType)
		ok, err := store.Exists(context.Background(), in.StorageKey)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, storage.PageKey("job", 3, ".png"), inputs[2].StorageKey)
}

func TestImageDirRendererTruncatesToMaxPages(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("%d.png", i)))
	}

	inputs, err := NewImageDirRenderer(newStorage(t), 3).RenderPages(context.Background(), Document{JobID: "job", Name: "scan", Path: dir})
	require.NoError(t, err)
	assert.Len(t, inputs, 3)
}

func TestImageDirRendererRejectsCorruptImage(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "1.png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2.png"), []byte("not an image"), 0o644))

	_, err := NewImageDirRenderer(newStorage(t), 0).RenderPages(context.Background(), Document{JobID: "job", Name: "scan", Path: dir})
	var rerr *domain.RenderError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "scan", rerr.Source)
}

func TestImageDirRendererEmptyDir(t *testing.T) {
	_, err := NewImageDirRenderer(newStorage(t), 0).RenderPages(context.Background(), Document{JobID: "job", Name: "empty", Path: t.TempDir()})
	var rerr *domain.RenderError
	assert.ErrorAs(t, err, &rerr)
}

// minimalPDF builds a valid PDF with the given number of blank pages.
func minimalPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	buf.WriteString("%PDF-1.4\n")
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+i)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", kids, pages))
	for i := 0; i < pages; i++ {
		writeObj("<< /Type /Page /Parent 2 0 R /Resources << >> >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPDFSplitterSplitsPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF(3), 0o644))

	store := newStorage(t)
	inputs, err := NewPDFSplitter(store, 0, "").RenderPages(context.Background(), Document{JobID: "job", Name: "doc.pdf", Path: path})
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	require.NoError(t, domain.ValidateSequence(inputs))

	for _, in := range inputs {
		assert.Equal(t, "application/pdf", in.MIMEType)
		data, err := storage.ReadAll(context.Background(), store, in.StorageKey)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
	}
}

func TestPDFSplitterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF(4), 0o644))

	inputs, err := NewPDFSplitter(newStorage(t), 2, "").RenderPages(context.Background(), Document{JobID: "job", Name: "doc.pdf", Path: path})
	require.NoError(t, err)
	assert.Len(t, inputs, 2)
}

func TestPDFSplitterRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a pdf"), 0o644))

	_, err := NewPDFSplitter(newStorage(t), 0, "").RenderPages(context.Background(), Document{JobID: "job", Name: "doc.pdf", Path: path})
	var rerr *domain.RenderError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "doc.pdf", rerr.Source)
}
